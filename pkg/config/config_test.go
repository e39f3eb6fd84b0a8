package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "PSGC", cfg.SheetName)
	assert.Equal(t, 2024, cfg.ReferenceYear)
	assert.True(t, cfg.Load.Strict)
	assert.Equal(t, 0, cfg.Load.OrphanTolerance)
	assert.Equal(t, StrategyTransactional, cfg.Load.Strategy)
	assert.Equal(t, 3, cfg.Load.MaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOAD_STRICT", "false")
	t.Setenv("LOAD_ORPHAN_TOLERANCE", "5")
	t.Setenv("LOAD_STRATEGY", "shadow")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "hunter2")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.False(t, cfg.Load.Strict)
	assert.Equal(t, 5, cfg.Load.OrphanTolerance)
	assert.Equal(t, StrategyShadow, cfg.Load.Strategy)
	assert.Contains(t, cfg.Database.ConnectionString(), "host=db.internal")
	assert.Contains(t, cfg.Database.ConnectionString(), "password=hunter2")
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	t.Setenv("LOAD_STRATEGY", "yolo")
	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown load strategy")
}

func TestDatabaseConfig_URLOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@neon.example/psgc?sslmode=require")
	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@neon.example/psgc?sslmode=require", cfg.Database.ConnectionString())
}
