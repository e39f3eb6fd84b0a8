// Package cmd holds the psgc-engine command tree. Commands load
// configuration, construct the services they need, and render structured
// results; all domain behavior lives in pkg.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psgc-data/psgc-engine/pkg/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// timeRounding trims elapsed-time output to a readable precision.
const timeRounding = time.Millisecond

var (
	workbookFlag string
	sheetFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "psgc-engine",
	Short: "Partition the PSGC publication workbook and load it into PostgreSQL",
	Long: `psgc-engine turns the Philippine Standard Geographic Code publication
workbook into a normalized relational dataset: a parent-linked location
hierarchy plus sparse attribute tables for population, city class, income
class and urban/rural tags. The dataset can be exported as CSV files or
loaded into PostgreSQL as a single atomic batch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workbookFlag, "workbook", "w", "", "Path to the publication workbook (overrides PSGC_WORKBOOK)")
	rootCmd.PersistentFlags().StringVarP(&sheetFlag, "sheet", "s", "", "Worksheet name (overrides PSGC_SHEET)")
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, err
	}
	if workbookFlag != "" {
		cfg.WorkbookPath = workbookFlag
	}
	if sheetFlag != "" {
		cfg.SheetName = sheetFlag
	}
	return cfg, nil
}

// newLogger builds the process logger. Local runs get the development
// console encoder; everything else logs production JSON.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
