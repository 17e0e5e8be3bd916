package schema

import "time"

// BackfillRunRecord represents a row from the backfill_runs table.
type BackfillRunRecord struct {
	RunID          string
	StartedAt      time.Time
	CompletedAt    *time.Time
	Status         string
	SourceType     string
	TotalDates     int32
	ProcessedDates int32
	ClosureDates   int32
	FailedDates    int32
	TotalRecords   int64
	DurationMs     *int64
	ConfigParams   *string
}

// DateOutcomeRecord represents a row from the backfill_date_outcomes table.
type DateOutcomeRecord struct {
	RunID          string
	ProcessingDate string
	Outcome        string
	ClosureReason  *string
	RecordsLoaded  int64
	TablesLoaded   int32
	ErrorMessage   *string
	ExecutionMs    int64
	RecordedAt     time.Time
}

// ClosureReportRow is one line of the closure summary report.
type ClosureReportRow struct {
	ProcessingDate string `json:"processing_date"`
	ClosureReason  string `json:"closure_reason"`
	ClosureRecords int    `json:"closure_records"`
}
