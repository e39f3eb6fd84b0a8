// Package services wires the engine together: building the partitioned
// dataset from the source rows, loading it atomically, and summarizing it.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/partition"
)

// RowSource supplies the loosely-typed entity rows of one source snapshot.
// The workbook reader implements it; tests substitute fixtures.
type RowSource interface {
	Rows(ctx context.Context) ([]models.SourceRow, error)
}

// PipelineService turns a source snapshot into a partitioned dataset.
type PipelineService interface {
	BuildDataset(ctx context.Context) (*models.Dataset, error)
}

type pipelineService struct {
	source      RowSource
	partitioner *partition.Partitioner
	logger      *zap.Logger
}

// NewPipelineService creates a PipelineService.
func NewPipelineService(source RowSource, partitioner *partition.Partitioner, logger *zap.Logger) PipelineService {
	return &pipelineService{
		source:      source,
		partitioner: partitioner,
		logger:      logger.Named("pipeline-service"),
	}
}

var _ PipelineService = (*pipelineService)(nil)

func (s *pipelineService) BuildDataset(ctx context.Context) (*models.Dataset, error) {
	rows, err := s.source.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read source rows: %w", err)
	}
	s.logger.Info("read source rows", zap.Int("rows", len(rows)))

	ds, err := s.partitioner.Build(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("partitioned dataset",
		zap.Int("locations", len(ds.Locations)),
		zap.Int("population", len(ds.Population)),
		zap.Int("city_classes", len(ds.CityClasses)),
		zap.Int("income_classes", len(ds.IncomeClasses)),
		zap.Int("settlement_tags", len(ds.SettlementTags)),
		zap.Int("duplicates", len(ds.Report.Duplicates)),
		zap.Int("orphans", len(ds.Report.Orphans)))
	return ds, nil
}
