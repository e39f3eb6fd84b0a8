package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/partition"
)

type staticSource struct {
	rows []models.SourceRow
	err  error
}

func (s *staticSource) Rows(ctx context.Context) ([]models.SourceRow, error) {
	return s.rows, s.err
}

func TestBuildDataset(t *testing.T) {
	source := &staticSource{rows: []models.SourceRow{
		{Index: 1, Code: "1300000000", Name: "NCR", LevelCode: "Reg", Population: "13484462"},
		{Index: 2, Code: "1374000000", Name: "NCR, Fourth District", LevelCode: "Prov"},
	}}
	svc := NewPipelineService(source, partition.New(partition.DefaultOptions()), zap.NewNop())

	ds, err := svc.BuildDataset(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Locations, 2)
	assert.Len(t, ds.Population, 1)
}

func TestBuildDataset_SourceError(t *testing.T) {
	source := &staticSource{err: errors.New("workbook missing")}
	svc := NewPipelineService(source, partition.New(partition.DefaultOptions()), zap.NewNop())

	_, err := svc.BuildDataset(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workbook missing")
}

func TestBuildDataset_PartitionErrorPropagates(t *testing.T) {
	source := &staticSource{rows: []models.SourceRow{
		{Index: 1, Code: "1376030000", Name: "City of Makati", LevelCode: "City"},
	}}
	svc := NewPipelineService(source, partition.New(partition.DefaultOptions()), zap.NewNop())

	_, err := svc.BuildDataset(context.Background())
	require.Error(t, err)
}
