package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/config"
	"github.com/psgc-data/psgc-engine/pkg/export"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/partition"
	"github.com/psgc-data/psgc-engine/pkg/services"
	"github.com/psgc-data/psgc-engine/pkg/workbook"
)

var outputDirFlag string

func init() {
	exportCmd.Flags().StringVarP(&outputDirFlag, "output", "o", "", "Directory for the CSV files (overrides PSGC_OUTPUT_DIR)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Partition the workbook and write one CSV per table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Env)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ds, err := buildDataset(cmd, cfg, logger)
		if err != nil {
			return err
		}
		reportFindings(cmd, ds)

		dir := cfg.OutputDir
		if outputDirFlag != "" {
			dir = outputDirFlag
		}
		paths, err := export.NewExporter(dir).Export(ds)
		if err != nil {
			return err
		}
		for _, path := range paths {
			cmd.Printf("wrote %s\n", path)
		}
		cmd.Printf("exported %s\n", summaryLine(ds))
		return nil
	},
}

// buildDataset runs the read-and-partition pipeline shared by the export,
// deploy and analyze commands.
func buildDataset(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*models.Dataset, error) {
	source := workbook.NewReader(cfg.WorkbookPath, cfg.SheetName)
	partitioner := partition.New(partition.Options{
		Strict:            cfg.Load.Strict,
		OrphanTolerance:   cfg.Load.OrphanTolerance,
		PopulationCeiling: cfg.Load.PopulationCeiling,
		ReferenceYear:     cfg.ReferenceYear,
		PopulationSource:  cfg.SourceLabel,
	})
	pipeline := services.NewPipelineService(source, partitioner, logger)
	return pipeline.BuildDataset(cmd.Context())
}

// reportFindings prints the partitioner's data-quality report.
func reportFindings(cmd *cobra.Command, ds *models.Dataset) {
	for _, w := range ds.Report.Warnings {
		cmd.Printf("warning: %s %s: %s\n", w.Code, w.Column, w.Message)
	}
	if len(ds.Report.Duplicates) > 0 {
		cmd.Printf("duplicates kept-first: %d\n", len(ds.Report.Duplicates))
	}
	if len(ds.Report.Orphans) > 0 {
		cmd.Printf("orphans tolerated: %d\n", len(ds.Report.Orphans))
	}
}

func summaryLine(ds *models.Dataset) string {
	return fmt.Sprintf("%d locations, %d population rows, %d city classes, %d income classes, %d settlement tags",
		len(ds.Locations), len(ds.Population), len(ds.CityClasses), len(ds.IncomeClasses), len(ds.SettlementTags))
}
