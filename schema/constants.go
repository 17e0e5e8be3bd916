package schema

// Custom string types for type safety.
type (
	// OutcomeKind is the persisted name of a DateOutcome variant.
	OutcomeKind string

	// ClosureReason explains why a date was classified as closed.
	ClosureReason string

	// SourceKind selects the extractor implementation.
	SourceKind string

	// LogFormat selects the zerolog writer.
	LogFormat string

	// DatabaseBackend represents the database backend for the warehouse.
	DatabaseBackend string
)

// All outcome kinds. These strings are part of the persisted summary format.
const (
	SuccessKind          OutcomeKind = "success"
	ClosureProcessedKind OutcomeKind = "closure_processed"
	NoFilesKind          OutcomeKind = "no_files"
	NoDataKind           OutcomeKind = "no_data"
	FailedKind           OutcomeKind = "failed"
)

// All closure reasons detected by the business calendar.
const (
	NoFilesReason     ClosureReason = "no_files"
	LowActivityReason ClosureReason = "low_activity"
	NoSalesReason     ClosureReason = "no_sales"
)

// All sources supported.
const (
	LocalSource SourceKind = "local" // default
	GCSSource   SourceKind = "gcs"
)

// All log formats supported.
const (
	ConsoleLog LogFormat = "console" // default
	JSONLog    LogFormat = "json"
)

// All warehouse backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// closureLabels holds the human-readable reason stored on placeholder rows.
var closureLabels = map[ClosureReason]string{
	NoFilesReason:     "Business closed - no data files found",
	LowActivityReason: "Business closed - minimal activity detected",
	NoSalesReason:     "Business closed - no sales activity",
}

// Label returns the human-readable description of the reason.
func (r ClosureReason) Label() string {
	if label, ok := closureLabels[r]; ok {
		return label
	}
	return string(r)
}

// AllClosureReasons lists every reason the calendar can emit, in decision order.
var AllClosureReasons = []ClosureReason{NoFilesReason, LowActivityReason, NoSalesReason}

// ValidSources lists all valid extractor sources.
var ValidSources = map[SourceKind]struct{}{
	LocalSource: {},
	GCSSource:   {},
}

// ValidLogFormats lists all valid log formats.
var ValidLogFormats = map[LogFormat]struct{}{
	ConsoleLog: {},
	JSONLog:    {},
}

// ValidDatabaseBackends lists all valid warehouse backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}
