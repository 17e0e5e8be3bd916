// Package parquet exports backfill run history to Parquet files
// using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/backfill/schema"
	"github.com/parquet-go/parquet-go"
)

// BackfillRun maps to the backfill_runs table.
type BackfillRun struct {
	RunID string `parquet:"run_id,snappy"`

	StartedAt   time.Time  `parquet:"started_at,snappy"`
	CompletedAt *time.Time `parquet:"completed_at,optional,snappy"` // Nil while running or after a crash

	Status     string `parquet:"status,snappy,dict"`
	SourceType string `parquet:"source_type,snappy,dict"`

	TotalDates     int32 `parquet:"total_dates,snappy"`
	ProcessedDates int32 `parquet:"processed_dates,snappy"`
	ClosureDates   int32 `parquet:"closure_dates,snappy"`
	FailedDates    int32 `parquet:"failed_dates,snappy"`
	TotalRecords   int64 `parquet:"total_records,snappy"`

	DurationMs   *int64  `parquet:"duration_ms,optional,snappy"`
	ConfigParams *string `parquet:"config_params,optional,snappy"` // JSON-encoded run configuration
}

// DateOutcome maps to the backfill_date_outcomes table.
type DateOutcome struct {
	RunID          string  `parquet:"run_id,snappy,dict"`
	ProcessingDate string  `parquet:"processing_date,snappy"`
	Outcome        string  `parquet:"outcome,snappy,dict"`
	ClosureReason  *string `parquet:"closure_reason,optional,snappy,dict"`
	RecordsLoaded  int64   `parquet:"records_loaded,snappy"`
	TablesLoaded   int32   `parquet:"tables_loaded,snappy"`
	ErrorMessage   *string `parquet:"error_message,optional,snappy"`
	ExecutionMs    int64   `parquet:"execution_ms,snappy"`

	RecordedAt time.Time `parquet:"recorded_at,snappy"`
}

// write encodes data into a Parquet file at outputPath using the schema inferred from T.
func write[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		_ = file.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return file.Close()
}

// WriteRunsParquet writes run records to a Parquet file.
func WriteRunsParquet(data []BackfillRun, outputPath string) error {
	return write(data, outputPath)
}

// WriteOutcomesParquet writes per-date outcomes to a Parquet file.
func WriteOutcomesParquet(data []DateOutcome, outputPath string) error {
	return write(data, outputPath)
}

// ConvertRunRecords converts stored runs for Parquet export.
func ConvertRunRecords(records []schema.BackfillRunRecord) []BackfillRun {
	result := make([]BackfillRun, len(records))
	for i, record := range records {
		result[i] = BackfillRun{
			RunID:          record.RunID,
			StartedAt:      record.StartedAt,
			CompletedAt:    record.CompletedAt,
			Status:         record.Status,
			SourceType:     record.SourceType,
			TotalDates:     record.TotalDates,
			ProcessedDates: record.ProcessedDates,
			ClosureDates:   record.ClosureDates,
			FailedDates:    record.FailedDates,
			TotalRecords:   record.TotalRecords,
			DurationMs:     record.DurationMs,
			ConfigParams:   record.ConfigParams,
		}
	}
	return result
}

// ConvertOutcomeRecords converts stored outcomes for Parquet export.
func ConvertOutcomeRecords(records []schema.DateOutcomeRecord) []DateOutcome {
	result := make([]DateOutcome, len(records))
	for i, record := range records {
		result[i] = DateOutcome{
			RunID:          record.RunID,
			ProcessingDate: record.ProcessingDate,
			Outcome:        record.Outcome,
			ClosureReason:  record.ClosureReason,
			RecordsLoaded:  record.RecordsLoaded,
			TablesLoaded:   record.TablesLoaded,
			ErrorMessage:   record.ErrorMessage,
			ExecutionMs:    record.ExecutionMs,
			RecordedAt:     record.RecordedAt,
		}
	}
	return result
}

// ConvertSummary flattens the outcomes of a finished run for export without a warehouse.
func ConvertSummary(summary schema.RunSummary) []DateOutcome {
	result := make([]DateOutcome, len(summary.Outcomes))
	for i, rec := range summary.Outcomes {
		out := DateOutcome{
			RunID:          summary.RunID,
			ProcessingDate: string(rec.Date),
			Outcome:        string(rec.Outcome),
			RecordsLoaded:  int64(rec.RecordsLoaded),
			TablesLoaded:   int32(rec.TablesLoaded),
			ExecutionMs:    rec.ExecutionTimeMs,
			RecordedAt:     summary.EndTime,
		}
		if rec.ClosureReason != "" {
			reason := string(rec.ClosureReason)
			out.ClosureReason = &reason
		}
		if rec.Error != "" {
			msg := rec.Error
			out.ErrorMessage = &msg
		}
		result[i] = out
	}
	return result
}
