package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/warehouse"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// profile holds profiling configuration.
var profile = &contract.ProfileConfig{}

// logger is built from the validated config in sharedSetup.
var logger = zerolog.Nop()

// startProfiling starts CPU profiling if enabled.
func startProfiling() error {
	if !profile.Enabled {
		return nil
	}

	cpuFile, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return fmt.Errorf("could not start CPU profiling: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiling enabled. CPU profile: %s.cpu.prof, Memory profile: %s.mem.prof\n", profile.Prefix, profile.Prefix)
	return err
}

// stopProfiling stops profiling and writes memory profile.
func stopProfiling() error {
	if !profile.Enabled {
		return nil
	}

	pprof.StopCPUProfile()

	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiling complete. Use 'go tool pprof %s.cpu.prof' to analyze.\n", profile.Prefix)
	return err
}

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:                "backfill",
	Short:              "Backfill historical POS exports into the analytics warehouse.",
	Long:               `Backfill walks a range of business dates, loads each day's POS export and records restaurant closures where no real data exists.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// setConfigLocation points viper at --config or the default search paths.
func setConfigLocation() {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		return
	}
	viper.SetConfigName(".backfill")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setConfigLocation()

	// Nested keys like thresholds.min-records map to BACKFILL_THRESHOLDS_MIN_RECORDS
	viper.SetEnvPrefix("BACKFILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("source", schema.LocalSource)
	viper.SetDefault("warehouse-backend", schema.SQLiteBackend)
	viper.SetDefault("warehouse-db-connect", "")
	viper.SetDefault("log-level", contract.DefaultLogLevel)
	viper.SetDefault("log-format", schema.ConsoleLog)
	viper.SetDefault("color", "yes")
	viper.SetDefault("max-workers", contract.DefaultMaxWorkers)
	viper.SetDefault("batch-size", contract.DefaultBatchSize)
	viper.SetDefault("log-file", contract.DefaultSummaryFile)
	viper.SetDefault("default-start", contract.DefaultStartDate)
	viper.SetDefault("default-end", contract.DefaultEndDate)

	viper.SetDefault("thresholds.min-records", contract.DefaultMinRecords)
	viper.SetDefault("thresholds.min-files", contract.DefaultMinFiles)
	viper.SetDefault("thresholds.min-sales", contract.DefaultMinSales)

	viper.SetDefault("retry.max-attempts", contract.DefaultMaxAttempts)
	viper.SetDefault("retry.base-delay", contract.DefaultBaseDelay.String())
	viper.SetDefault("retry.max-delay", contract.DefaultMaxDelay.String())
	viper.SetDefault("retry.exponential-base", contract.DefaultExponentialBase)
	viper.SetDefault("retry.jitter", true)
}

// readConfig merges the config file, if any, into viper and unmarshals the raw input.
func readConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return nil
}

// buildLogger writes logs to stderr so stdout stays free for tables and JSON.
func buildLogger() error {
	l, err := contract.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr, !cfg.UseColors)
	if err != nil {
		return contract.NewConfigurationError("log-level", cfg.LogLevel, err.Error())
	}
	logger = l
	return nil
}

// sharedSetup unmarshals config, runs validation and opens the warehouse.
func sharedSetup(ctx context.Context, _ *cobra.Command, _ []string) error {
	if err := contract.ProcessProfilingConfig(profile, viper.GetString("profile")); err != nil {
		return fmt.Errorf("failed to process profiling config: %w", err)
	}
	if err := startProfiling(); err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}

	if err := readConfig(); err != nil {
		return err
	}
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	if err := buildLogger(); err != nil {
		return err
	}

	if err := warehouse.InitWarehouse(ctx, cfg.WarehouseBackend, cfg.WarehouseDBConnect, logger); err != nil {
		return fmt.Errorf("failed to initialize warehouse: %w", err)
	}
	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// StopProfiling stops profiling if enabled.
func StopProfiling() error {
	return stopProfiling()
}
