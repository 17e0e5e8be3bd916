// Package cmd defines the command-line interface for backfill.
package cmd

import (
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(warehouseCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	warehouseCmd.AddCommand(warehouseStatusCmd)
	warehouseCmd.AddCommand(warehouseClosuresCmd)
	warehouseCmd.AddCommand(warehouseClearCmd)
	warehouseCmd.AddCommand(warehouseMigrateCmd)
	warehouseCmd.AddCommand(warehouseExportCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("source", string(schema.LocalSource), "Export source: local or gcs")
	rootCmd.PersistentFlags().String("source-dir", "", "Root directory holding one YYYYMMDD folder per export (local source)")
	rootCmd.PersistentFlags().String("source-bucket", "", "Bucket holding the exports (gcs source)")
	rootCmd.PersistentFlags().String("source-prefix", "", "Object prefix in front of the YYYYMMDD folders (gcs source)")
	rootCmd.PersistentFlags().String("staging-dir", "", "Directory for per-date staging folders (default: system temp)")
	rootCmd.PersistentFlags().String("warehouse-backend", string(schema.SQLiteBackend), "Warehouse backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("warehouse-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("log-level", contract.DefaultLogLevel, "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("log-format", string(schema.ConsoleLog), "Log format: console or json")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("output", "text", "Report format for run and warehouse commands: text or json")
	rootCmd.PersistentFlags().String("report-file", "", "Write run and warehouse reports to this file instead of stdout")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of runCmd to Viper
	runCmd.Flags().String("start-date", "", "First date to process (YYYYMMDD)")
	runCmd.Flags().String("end-date", "", "Last date to process (YYYYMMDD)")
	runCmd.Flags().StringSlice("dates", nil, "Comma-separated list of specific dates (YYYYMMDD)")
	runCmd.Flags().Bool("all", false, "Process the full default historical range")
	runCmd.Flags().Bool("dry-run", false, "Show the dates that would be processed without loading anything")
	runCmd.Flags().Int("max-workers", contract.DefaultMaxWorkers, "Number of dates processed concurrently within a batch")
	runCmd.Flags().Int("batch-size", contract.DefaultBatchSize, "Number of dates per batch")
	runCmd.Flags().Bool("no-skip-existing", false, "Reprocess dates the warehouse already holds")
	runCmd.Flags().Bool("no-validate", false, "Skip post-load row count validation")
	runCmd.Flags().String("log-file", contract.DefaultSummaryFile, "Path or gs:// URI for the JSON run summary")
	runCmd.MarkFlagsMutuallyExclusive("all", "dates")
	runCmd.MarkFlagsMutuallyExclusive("all", "start-date")
	runCmd.MarkFlagsMutuallyExclusive("dates", "start-date")
	runCmd.MarkFlagsMutuallyExclusive("dates", "end-date")
	runCmd.MarkFlagsRequiredTogether("start-date", "end-date")
	if err := viper.BindPFlags(runCmd.Flags()); err != nil {
		contract.LogFatal("Error binding run flags", err)
	}

	// Bind all flags of warehouseMigrateCmd to Viper
	warehouseMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(warehouseMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding warehouse migrate flags", err)
	}

	// Bind all flags of warehouseExportCmd to Viper
	warehouseExportCmd.Flags().String("output-file", "", "Parquet file prefix for exported runs and outcomes")
	if err := viper.BindPFlags(warehouseExportCmd.Flags()); err != nil {
		contract.LogFatal("Error binding warehouse export flags", err)
	}
}
