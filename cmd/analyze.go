package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/psgc-data/psgc-engine/pkg/services"
)

var topProvincesFlag int

func init() {
	analyzeCmd.Flags().IntVar(&topProvincesFlag, "top", 10, "How many provinces to list by population")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Partition the workbook and print dataset statistics",
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

		summary := services.Summarize(ds, topProvincesFlag)

		cmd.Printf("total locations: %d\n", summary.TotalLocations)

		cmd.Println("by level:")
		for _, level := range sortedKeys(summary.LevelCounts) {
			cmd.Printf("  %-6s %8d  population %d\n",
				level, summary.LevelCounts[level], summary.PopulationByLevel[level])
		}

		printCounts(cmd, "city classes:", summary.CityClassCounts)
		printCounts(cmd, "income classes:", summary.IncomeClassCounts)
		printCounts(cmd, "urban/rural:", summary.UrbanRuralCounts)

		if len(summary.TopProvinces) > 0 {
			cmd.Println("top provinces by population:")
			for _, p := range summary.TopProvinces {
				cmd.Printf("  %s  %-40s %12d\n", p.Code, p.Name, p.Population)
			}
		}
		return nil
	},
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	cmd.Println(title)
	for _, key := range sortedKeys(counts) {
		cmd.Printf("  %-10s %8d\n", key, counts[key])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
