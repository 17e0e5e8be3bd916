package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/huangsam/backfill/schema"
	"github.com/shopspring/decimal"
)

// Default values for configuration.
const (
	DefaultMaxWorkers  = 3
	DefaultBatchSize   = 10
	DefaultSummaryFile = "backfill_log.json"

	DefaultMinRecords = 10
	DefaultMinFiles   = 4
	DefaultMinSales   = "50"

	DefaultMaxAttempts     = 3
	DefaultBaseDelay       = 30 * time.Second
	DefaultMaxDelay        = 300 * time.Second
	DefaultExponentialBase = 2.0

	// DefaultStartDate and DefaultEndDate bound the full historical export.
	DefaultStartDate = "20240404"
	DefaultEndDate   = "20250609"
)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// RetrySettings holds the shared backoff parameters for collaborator calls.
type RetrySettings struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// Config holds the runtime configuration for a backfill.
// This struct is the "final, validated" config.
type Config struct {
	Run        schema.RunConfig
	Thresholds schema.ThresholdConfig
	Retry      RetrySettings

	// Date selection, validated later by the date resolver
	StartDate string
	EndDate   string
	Dates     []string
	DryRun    bool

	DefaultStart string
	DefaultEnd   string

	Source       schema.SourceKind
	SourceDir    string
	SourceBucket string
	SourcePrefix string
	StagingDir   string

	WarehouseBackend   schema.DatabaseBackend
	WarehouseDBConnect string // Please use env var as this is plaintext

	SummaryFile string
	LogLevel    string
	LogFormat   schema.LogFormat
	UseColors   bool
}

// ThresholdsRawInput holds closure detection thresholds from config file, env or flags.
type ThresholdsRawInput struct {
	MinRecords int    `mapstructure:"min-records"`
	MinFiles   int    `mapstructure:"min-files"`
	MinSales   string `mapstructure:"min-sales"`
}

// RetryRawInput holds backoff settings from config file or env.
type RetryRawInput struct {
	MaxAttempts     int     `mapstructure:"max-attempts"`
	BaseDelay       string  `mapstructure:"base-delay"`
	MaxDelay        string  `mapstructure:"max-delay"`
	ExponentialBase float64 `mapstructure:"exponential-base"`
	Jitter          bool    `mapstructure:"jitter"`
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	SourceKind         string `mapstructure:"source"`
	SourceDir          string `mapstructure:"source-dir"`
	SourceBucket       string `mapstructure:"source-bucket"`
	SourcePrefix       string `mapstructure:"source-prefix"`
	StagingDir         string `mapstructure:"staging-dir"`
	WarehouseBackend   string `mapstructure:"warehouse-backend"`
	WarehouseDBConnect string `mapstructure:"warehouse-db-connect"`
	LogLevel           string `mapstructure:"log-level"`
	LogFormat          string `mapstructure:"log-format"`
	Color              string `mapstructure:"color"`

	// --- Fields from runCmd.Flags() ---
	StartDate      string   `mapstructure:"start-date"`
	EndDate        string   `mapstructure:"end-date"`
	Dates          []string `mapstructure:"dates"`
	All            bool     `mapstructure:"all"`
	DryRun         bool     `mapstructure:"dry-run"`
	MaxWorkers     int      `mapstructure:"max-workers"`
	BatchSize      int      `mapstructure:"batch-size"`
	NoSkipExisting bool     `mapstructure:"no-skip-existing"`
	NoValidate     bool     `mapstructure:"no-validate"`
	LogFile        string   `mapstructure:"log-file"`

	// --- Config file only ---
	DefaultStart string `mapstructure:"default-start"`
	DefaultEnd   string `mapstructure:"default-end"`

	Thresholds ThresholdsRawInput `mapstructure:"thresholds"`
	Retry      RetryRawInput      `mapstructure:"retry"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Dates = slices.Clone(c.Dates)
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := processRunConfig(cfg, input); err != nil {
		return err
	}
	if err := processDateSelection(cfg, input); err != nil {
		return err
	}
	if err := processThresholds(cfg, input); err != nil {
		return err
	}
	if err := processRetry(cfg, input); err != nil {
		return err
	}
	if err := processSource(cfg, input); err != nil {
		return err
	}
	if err := ProcessWarehouseConfig(cfg, input); err != nil {
		return err
	}
	return ProcessLoggingConfig(cfg, input)
}

// processRunConfig validates batch scheduling inputs.
func processRunConfig(cfg *Config, input *ConfigRawInput) error {
	if input.MaxWorkers <= 0 {
		return NewConfigurationError("max-workers", fmt.Sprint(input.MaxWorkers), "must be greater than 0")
	}
	if input.BatchSize <= 0 {
		return NewConfigurationError("batch-size", fmt.Sprint(input.BatchSize), "must be greater than 0")
	}
	cfg.Run = schema.RunConfig{
		MaxWorkers:   input.MaxWorkers,
		BatchSize:    input.BatchSize,
		SkipExisting: !input.NoSkipExisting,
		ValidateData: !input.NoValidate,
	}
	cfg.DryRun = input.DryRun
	cfg.SummaryFile = strings.TrimSpace(input.LogFile)
	if cfg.SummaryFile == "" {
		cfg.SummaryFile = DefaultSummaryFile
	}
	return nil
}

// processDateSelection checks that the scope flags are coherent.
// Date formats are checked by the resolver so that every entry point shares one path.
func processDateSelection(cfg *Config, input *ConfigRawInput) error {
	cfg.StartDate = strings.TrimSpace(input.StartDate)
	cfg.EndDate = strings.TrimSpace(input.EndDate)
	cfg.Dates = nil
	for _, d := range input.Dates {
		for part := range strings.SplitSeq(d, ",") {
			if p := strings.TrimSpace(part); p != "" {
				cfg.Dates = append(cfg.Dates, p)
			}
		}
	}

	if cfg.StartDate != "" && cfg.EndDate == "" {
		return NewConfigurationError("end-date", "", "--end-date is required when using --start-date")
	}
	if cfg.EndDate != "" && cfg.StartDate == "" {
		return NewConfigurationError("start-date", "", "--start-date is required when using --end-date")
	}
	if len(cfg.Dates) > 0 && cfg.StartDate != "" {
		return NewConfigurationError("dates", "", "--dates cannot be combined with --start-date/--end-date")
	}
	if input.All && (len(cfg.Dates) > 0 || cfg.StartDate != "") {
		return NewConfigurationError("all", "", "--all cannot be combined with other date selections")
	}

	cfg.DefaultStart = strings.TrimSpace(input.DefaultStart)
	if cfg.DefaultStart == "" {
		cfg.DefaultStart = DefaultStartDate
	}
	cfg.DefaultEnd = strings.TrimSpace(input.DefaultEnd)
	if cfg.DefaultEnd == "" {
		cfg.DefaultEnd = DefaultEndDate
	}
	return nil
}

// processThresholds converts the raw threshold input into the final ThresholdConfig.
func processThresholds(cfg *Config, input *ConfigRawInput) error {
	t := input.Thresholds
	if t.MinRecords < 0 {
		return NewConfigurationError("thresholds.min-records", fmt.Sprint(t.MinRecords), "must not be negative")
	}
	if t.MinFiles < 0 {
		return NewConfigurationError("thresholds.min-files", fmt.Sprint(t.MinFiles), "must not be negative")
	}

	salesStr := strings.TrimSpace(t.MinSales)
	if salesStr == "" {
		salesStr = DefaultMinSales
	}
	minSales, err := decimal.NewFromString(strings.TrimPrefix(salesStr, "$"))
	if err != nil {
		return NewConfigurationError("thresholds.min-sales", t.MinSales, "must be a decimal amount")
	}
	if minSales.IsNegative() {
		return NewConfigurationError("thresholds.min-sales", t.MinSales, "must not be negative")
	}

	cfg.Thresholds = schema.ThresholdConfig{
		MinRecords: t.MinRecords,
		MinFiles:   t.MinFiles,
		MinSales:   minSales,
	}
	return nil
}

// processRetry parses backoff durations and bounds.
func processRetry(cfg *Config, input *ConfigRawInput) error {
	r := input.Retry
	if r.MaxAttempts < 1 {
		return NewConfigurationError("retry.max-attempts", fmt.Sprint(r.MaxAttempts), "must be at least 1")
	}
	if r.ExponentialBase < 1 {
		return NewConfigurationError("retry.exponential-base", fmt.Sprint(r.ExponentialBase), "must be at least 1.0")
	}

	baseDelay, err := parseDurationOr(r.BaseDelay, DefaultBaseDelay)
	if err != nil {
		return NewConfigurationError("retry.base-delay", r.BaseDelay, err.Error())
	}
	maxDelay, err := parseDurationOr(r.MaxDelay, DefaultMaxDelay)
	if err != nil {
		return NewConfigurationError("retry.max-delay", r.MaxDelay, err.Error())
	}
	if maxDelay < baseDelay {
		return NewConfigurationError("retry.max-delay", r.MaxDelay, "must not be less than retry.base-delay")
	}

	cfg.Retry = RetrySettings{
		MaxAttempts:     r.MaxAttempts,
		BaseDelay:       baseDelay,
		MaxDelay:        maxDelay,
		ExponentialBase: r.ExponentialBase,
		Jitter:          r.Jitter,
	}
	return nil
}

// parseDurationOr parses s, returning fallback when s is empty.
func parseDurationOr(s string, fallback time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("must be a duration like 30s or 5m")
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// processSource validates the extractor selection.
func processSource(cfg *Config, input *ConfigRawInput) error {
	cfg.Source = schema.SourceKind(strings.ToLower(strings.TrimSpace(input.SourceKind)))
	if cfg.Source == "" {
		cfg.Source = schema.LocalSource
	}
	if _, ok := schema.ValidSources[cfg.Source]; !ok {
		return NewConfigurationError("source", input.SourceKind, "must be local or gcs")
	}

	cfg.SourceDir = strings.TrimSpace(input.SourceDir)
	cfg.SourceBucket = strings.TrimSpace(input.SourceBucket)
	cfg.SourcePrefix = strings.Trim(strings.TrimSpace(input.SourcePrefix), "/")
	switch cfg.Source {
	case schema.LocalSource:
		if cfg.SourceDir == "" {
			return NewConfigurationError("source-dir", "", "is required for the local source")
		}
	case schema.GCSSource:
		if cfg.SourceBucket == "" {
			return NewConfigurationError("source-bucket", "", "is required for the gcs source")
		}
	}

	cfg.StagingDir = strings.TrimSpace(input.StagingDir)
	if cfg.StagingDir == "" {
		cfg.StagingDir = GetStagingDir()
	}
	return nil
}

// ProcessWarehouseConfig validates the warehouse backend and connection string.
// Warehouse subcommands call it on its own to avoid requiring run inputs.
func ProcessWarehouseConfig(cfg *Config, input *ConfigRawInput) error {
	cfg.WarehouseBackend = schema.DatabaseBackend(strings.ToLower(strings.TrimSpace(input.WarehouseBackend)))
	if cfg.WarehouseBackend == "" {
		cfg.WarehouseBackend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.WarehouseBackend]; !ok {
		return fmt.Errorf("invalid warehouse backend '%s'. must be sqlite, mysql, postgresql, none", input.WarehouseBackend)
	}
	cfg.WarehouseDBConnect = input.WarehouseDBConnect
	return ValidateDatabaseConnectionString(cfg.WarehouseBackend, cfg.WarehouseDBConnect)
}

// ProcessLoggingConfig validates logging and color inputs.
func ProcessLoggingConfig(cfg *Config, input *ConfigRawInput) error {
	cfg.LogLevel = strings.TrimSpace(input.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	cfg.LogFormat = schema.LogFormat(strings.ToLower(strings.TrimSpace(input.LogFormat)))
	if cfg.LogFormat == "" {
		cfg.LogFormat = schema.ConsoleLog
	}
	if _, ok := schema.ValidLogFormats[cfg.LogFormat]; !ok {
		return NewConfigurationError("log-format", input.LogFormat, "must be console or json")
	}

	cfg.UseColors = true
	if input.Color != "" {
		useColors, err := ParseBoolString(input.Color)
		if err != nil {
			return NewConfigurationError("color", input.Color, err.Error())
		}
		cfg.UseColors = useColors
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("warehouse-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("warehouse-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") && !strings.HasPrefix(connStr, "postgres") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter or be a postgres:// URL")
		}
		if strings.Contains(connStr, "host=") && !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// GetWarehouseDBFilePath returns the path to the SQLite DB file for warehouse storage.
func GetWarehouseDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".backfill_warehouse.db"
	}
	return filepath.Join(homeDir, ".backfill_warehouse.db")
}

// GetStagingDir returns the default root for per-date staging directories.
func GetStagingDir() string {
	return filepath.Join(os.TempDir(), "backfill_staging")
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
