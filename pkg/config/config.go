package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for psgc-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (PGPASSWORD) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Source workbook
	WorkbookPath string `yaml:"workbook_path" env:"PSGC_WORKBOOK" env-default:"PSGC-3Q-2025-Publication-Datafile.xlsx"`
	SheetName    string `yaml:"sheet_name" env:"PSGC_SHEET" env-default:"PSGC"`

	// CSV export destination
	OutputDir string `yaml:"output_dir" env:"PSGC_OUTPUT_DIR" env-default:"data_exports"`

	// Provenance recorded alongside the population figures
	ReferenceYear int    `yaml:"reference_year" env:"PSGC_REFERENCE_YEAR" env-default:"2024"`
	SourceLabel   string `yaml:"source_label" env:"PSGC_SOURCE_LABEL" env-default:"2024 POPCEN (PSA)"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Batch load behavior
	Load LoadConfig `yaml:"load"`

	// MigrationsPath is the directory holding the schema migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"psgc"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"psgc"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// URL overrides the individual fields when set (e.g. a managed
	// provider connection string).
	URL string `yaml:"-" env:"DATABASE_URL"`
}

// LoadConfig holds batch strictness and retry settings for the atomic load.
type LoadConfig struct {
	// Strict fails the batch on duplicate codes rather than keeping the
	// first occurrence.
	Strict bool `yaml:"strict" env:"LOAD_STRICT" env-default:"true"`

	// OrphanTolerance is how many unresolvable non-region entities the
	// batch may carry before failing.
	OrphanTolerance int `yaml:"orphan_tolerance" env:"LOAD_ORPHAN_TOLERANCE" env-default:"0"`

	// PopulationCeiling flags population values above this bound as
	// implausible. Zero disables the check.
	PopulationCeiling int64 `yaml:"population_ceiling" env:"LOAD_POPULATION_CEILING" env-default:"300000000"`

	// Strategy selects the table replacement mechanism: "transactional"
	// (delete + copy inside one transaction) or "shadow" (copy into
	// shadow tables, then swap).
	Strategy string `yaml:"strategy" env:"LOAD_STRATEGY" env-default:"transactional"`

	// Retry behavior for transient store failures.
	MaxRetries         int           `yaml:"max_retries" env:"LOAD_MAX_RETRIES" env-default:"3"`
	RetryInitialDelay  time.Duration `yaml:"retry_initial_delay" env:"LOAD_RETRY_INITIAL_DELAY" env-default:"500ms"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay" env:"LOAD_RETRY_MAX_DELAY" env-default:"10s"`
	RetryBackoffFactor float64       `yaml:"retry_backoff_factor" env:"LOAD_RETRY_BACKOFF_FACTOR" env-default:"2.0"`
}

// Replacement strategy names accepted by LoadConfig.Strategy.
const (
	StrategyTransactional = "transactional"
	StrategyShadow        = "shadow"
)

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is fine; environment defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Load.Strategy {
	case StrategyTransactional, StrategyShadow:
	default:
		return fmt.Errorf("unknown load strategy %q", c.Load.Strategy)
	}
	if c.Load.OrphanTolerance < 0 {
		return fmt.Errorf("orphan tolerance must not be negative")
	}
	if c.Load.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
