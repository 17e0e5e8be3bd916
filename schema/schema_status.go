package schema

import "time"

// ProgressSnapshot is a read-only projection of an in-progress run.
type ProgressSnapshot struct {
	RunID              string  `json:"run_id,omitempty"`
	Running            bool    `json:"running"`
	TotalDates         int     `json:"total_dates"`
	ProcessedDates     int     `json:"processed_dates"`
	ClosureDates       int     `json:"closure_dates"`
	FailedDates        int     `json:"failed_dates"`
	TotalRecords       int     `json:"total_records"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// RunSummary is the final, persisted record of a backfill run.
// Field names are consumed by downstream tooling and must stay stable.
type RunSummary struct {
	RunID           string           `json:"run_id"`
	TotalDates      int              `json:"total_dates"`
	ProcessedDates  int              `json:"processed_dates"`
	ClosureDates    int              `json:"closure_dates"`
	FailedDates     int              `json:"failed_dates"`
	TotalRecords    int              `json:"total_records"`
	Duration        string           `json:"duration"`
	DurationSeconds float64          `json:"duration_seconds"`
	SuccessRate     float64          `json:"success_rate"`
	FailedDateList  []ProcessingDate `json:"failed_date_list"`
	ClosureDateList []ProcessingDate `json:"closure_date_list"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	Outcomes        []OutcomeRecord  `json:"outcomes"`
}

// RunStatus values stored by the run tracker.
const (
	RunRunning   = "running"
	RunSucceeded = "success"
	RunFailed    = "failed"
)

// RunRecord describes a backfill run when it begins.
type RunRecord struct {
	RunID        string
	StartedAt    time.Time
	SourceType   string // manual, scheduled, backfill
	ConfigParams map[string]any
}

// WarehouseStatus represents the status of the warehouse store.
type WarehouseStatus struct {
	Backend        string           `json:"backend"`
	Connected      bool             `json:"connected"`
	TotalRuns      int              `json:"total_runs"`
	LastRunID      string           `json:"last_run_id"`
	LastRunTime    time.Time        `json:"last_run_time"`
	ProcessedDates int              `json:"processed_dates"`
	ClosureDates   int              `json:"closure_dates"`
	TableSizes     map[string]int64 `json:"table_sizes"`
	BusinessRows   map[string]int64 `json:"business_rows"` // Rows per POS table excluding closure placeholders
}
