package cmd

import (
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/warehouse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// warehouseConfig loads the minimal configuration needed for warehouse operations.
// Run inputs such as --source-dir are not required here.
func warehouseConfig() error {
	setConfigLocation()
	if err := readConfig(); err != nil {
		return err
	}
	if err := contract.ProcessWarehouseConfig(cfg, input); err != nil {
		return err
	}
	if err := contract.ProcessLoggingConfig(cfg, input); err != nil {
		return err
	}
	return buildLogger()
}

// warehouseSetupWrapper opens the warehouse for read and clear commands.
func warehouseSetupWrapper(_ *cobra.Command, _ []string) error {
	if err := warehouseConfig(); err != nil {
		return err
	}
	return warehouse.InitWarehouse(rootCtx, cfg.WarehouseBackend, cfg.WarehouseDBConnect, logger)
}

// warehouseCmd groups warehouse maintenance commands.
//
// Note: these subcommands skip sharedSetup so that they work without any
// source configuration.
var warehouseCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Inspect and maintain the analytics warehouse",
	Long: `Inspect and maintain the warehouse that backfill loads into.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (no persistence)

Subcommands:
  status   - Show run history and table sizes
  closures - List every date loaded as a closure
  clear    - Remove all warehouse data
  migrate  - Move the schema to a specific version
  export   - Write run history to Parquet files`,
}

// warehouseStatusCmd shows warehouse status.
var warehouseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run history and table sizes",
	Long: `Show the warehouse backend, the most recent run, the number of processed
and closure dates, and row counts per table.

Business row counts exclude closure placeholders.

Examples:
  backfill warehouse status
  BACKFILL_WAREHOUSE_BACKEND=postgresql BACKFILL_WAREHOUSE_DB_CONNECT="..." backfill warehouse status`,
	PreRunE: warehouseSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := warehouse.Manager.GetStore().GetStatus(rootCtx)
		if err != nil {
			return err
		}
		ow, closeReport, err := reportWriter(cmd)
		if err != nil {
			return err
		}
		defer closeReport()
		return writeReport(ow, status, ow.WriteStatus)
	},
}

// warehouseClosuresCmd lists closure dates.
var warehouseClosuresCmd = &cobra.Command{
	Use:   "closures",
	Short: "List dates that were loaded as closures",
	Long: `List every date stored with a closure placeholder, together with the
reason it was classified as closed.

Examples:
  backfill warehouse closures`,
	PreRunE: warehouseSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := warehouse.Manager.GetStore().ClosureReport(rootCtx)
		if err != nil {
			return err
		}
		ow, closeReport, err := reportWriter(cmd)
		if err != nil {
			return err
		}
		defer closeReport()
		return writeReport(ow, report, ow.WriteClosures)
	},
}

// warehouseClearCmd clears the warehouse.
var warehouseClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all loaded data and run history",
	Long: `Delete all warehouse data from the configured backend.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the warehouse tables and the migration table

Examples:
  # Clear SQLite warehouse (default)
  backfill warehouse clear

  # Clear MySQL warehouse (set connection string via env variable)
  BACKFILL_WAREHOUSE_BACKEND=mysql BACKFILL_WAREHOUSE_DB_CONNECT="..." backfill warehouse clear`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return warehouseConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := warehouse.ClearWarehouse(rootCtx, cfg.WarehouseBackend, warehouse.GetDBFilePath(cfg.WarehouseDBConnect), cfg.WarehouseDBConnect); err != nil {
			return err
		}
		cmd.Println("Warehouse cleared successfully.")
		return nil
	},
}

// warehouseMigrateCmd moves the schema between versions.
var warehouseMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the warehouse schema",
	Long: `Apply or roll back warehouse schema migrations.

Every other command migrates to the latest version on startup. Use this
command to roll back or to inspect the current version.

Examples:
  # Migrate to latest
  backfill warehouse migrate

  # Roll back everything
  backfill warehouse migrate --target-version 0`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return warehouseConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return warehouse.Migrate(rootCtx, cfg.WarehouseBackend, cfg.WarehouseDBConnect, viper.GetInt("target-version"), cmd.OutOrStdout())
	},
}

// warehouseExportCmd exports run history.
var warehouseExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to Parquet",
	Long: `Write all recorded runs and per-date outcomes to two Parquet files:
<output-file>.runs.parquet and <output-file>.outcomes.parquet.

Examples:
  backfill warehouse export --output-file history`,
	PreRunE: warehouseSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return warehouse.ExportParquet(rootCtx, warehouse.Manager.GetStore(), viper.GetString("output-file"), cmd.OutOrStdout())
	},
}
