package cmd

import (
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/database"
	"github.com/psgc-data/psgc-engine/pkg/logging"
	"github.com/psgc-data/psgc-engine/pkg/models"
	"github.com/psgc-data/psgc-engine/pkg/repositories"
	"github.com/psgc-data/psgc-engine/pkg/services"
)

var strategyFlag string

func init() {
	deployCmd.Flags().StringVar(&strategyFlag, "strategy", "", "Replacement strategy: transactional or shadow (overrides LOAD_STRATEGY)")
	rootCmd.AddCommand(deployCmd)
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Partition the workbook and load it into PostgreSQL atomically",
	Long: `deploy replaces the entire dataset in one atomic batch. The staged
tables are validated (row counts, orphans, attribute references, a sample
read) before they become visible; any failure leaves the previous dataset
untouched. Transient database failures retry with backoff.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if strategyFlag != "" {
			cfg.Load.Strategy = strategyFlag
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

		connStr := cfg.Database.ConnectionString()
		logger.Info("connecting",
			zap.String("database", logging.SanitizeConnectionString(connStr)),
			zap.String("strategy", cfg.Load.Strategy))

		db, err := database.NewConnection(cmd.Context(), &database.Config{
			URL:            connStr,
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		sqlDB, err := database.OpenForMigrations(connStr)
		if err != nil {
			return err
		}
		if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
			sqlDB.Close()
			return err
		}
		sqlDB.Close()

		repo, err := repositories.NewDatasetRepository(db, cfg.Load.Strategy)
		if err != nil {
			return err
		}
		loader := services.NewLoadService(repo, cfg.Load, logger)

		result, err := loader.Load(cmd.Context(), ds)
		renderLoadResult(cmd, result)
		return err
	},
}

// renderLoadResult prints the structured outcome of the load. The result is
// always populated, success or failure.
func renderLoadResult(cmd *cobra.Command, result *models.LoadResult) {
	cmd.Printf("batch %s: success=%t attempts=%d elapsed=%s\n",
		result.BatchID, result.Success, result.Attempts,
		result.FinishedAt.Sub(result.StartedAt).Round(timeRounding))

	tables := make([]string, 0, len(result.TableRows))
	for name := range result.TableRows {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	for _, name := range tables {
		cmd.Printf("  %s: %d rows\n", name, result.TableRows[name])
	}

	v := result.Validation
	cmd.Printf("  validation: counts=%t orphans=%t references=%t sample=%t\n",
		v.RowCountsOK, v.OrphansOK, v.ReferencesOK, v.SampleReadOK)
	for _, failure := range v.Failures {
		cmd.Printf("  validation failure: %s\n", failure)
	}
	if result.Err != "" {
		cmd.Printf("  error: %s\n", result.Err)
	}
}
