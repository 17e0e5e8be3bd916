package warehouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/huangsam/backfill/schema"
)

// BeginRun implements the RunTracker interface.
func (s *Store) BeginRun(ctx context.Context, run schema.RunRecord) error {
	if s.disabled() {
		return nil
	}

	configJSON, err := json.Marshal(run.ConfigParams)
	if err != nil {
		return fmt.Errorf("failed to marshal config params: %w", err)
	}

	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (run_id, started_at, status, source_type, config_params)
		VALUES (?, ?, ?, ?, ?)`, runsTable))
	if _, err := s.db.ExecContext(ctx, query, run.RunID, s.formatTime(run.StartedAt), schema.RunRunning, run.SourceType, string(configJSON)); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordOutcome implements the RunTracker interface.
func (s *Store) RecordOutcome(ctx context.Context, runID string, outcome schema.DateOutcome) error {
	if s.disabled() {
		return nil
	}

	rec := outcome.Record()
	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (run_id, processing_date, outcome, closure_reason, records_loaded,
		tables_loaded, error_message, execution_ms, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, outcomesTable))
	_, err := s.db.ExecContext(ctx, query,
		runID, string(rec.Date), string(rec.Outcome), nullString(string(rec.ClosureReason)), rec.RecordsLoaded,
		rec.TablesLoaded, nullString(rec.Error), rec.ExecutionTimeMs, s.formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", rec.Date, err)
	}
	return nil
}

// EndRun implements the RunTracker interface. A run with any failed date ends as failed.
func (s *Store) EndRun(ctx context.Context, runID string, summary schema.RunSummary) error {
	if s.disabled() {
		return nil
	}

	status := schema.RunSucceeded
	if summary.FailedDates > 0 {
		status = schema.RunFailed
	}
	durationMs := summary.EndTime.Sub(summary.StartTime).Milliseconds()

	query := s.rebind(fmt.Sprintf(`UPDATE %s SET completed_at = ?, status = ?, total_dates = ?, processed_dates = ?,
		closure_dates = ?, failed_dates = ?, total_records = ?, duration_ms = ? WHERE run_id = ?`, runsTable))
	res, err := s.db.ExecContext(ctx, query,
		s.formatTime(summary.EndTime), status, summary.TotalDates, summary.ProcessedDates,
		summary.ClosureDates, summary.FailedDates, summary.TotalRecords, durationMs, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetAllRuns retrieves all run records ordered by start time.
func (s *Store) GetAllRuns(ctx context.Context) ([]schema.BackfillRunRecord, error) {
	if s.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, started_at, completed_at, status, source_type, total_dates, processed_dates,
		closure_dates, failed_dates, total_records, duration_ms, config_params FROM %s ORDER BY started_at, run_id`, runsTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.BackfillRunRecord
	for rows.Next() {
		var record schema.BackfillRunRecord
		var started, completed dbTime
		if err := rows.Scan(&record.RunID, &started, &completed, &record.Status, &record.SourceType,
			&record.TotalDates, &record.ProcessedDates, &record.ClosureDates, &record.FailedDates,
			&record.TotalRecords, &record.DurationMs, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		record.StartedAt = started.Time
		record.CompletedAt = completed.ptr()
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllOutcomes retrieves all per-date outcomes ordered by run and date.
func (s *Store) GetAllOutcomes(ctx context.Context) ([]schema.DateOutcomeRecord, error) {
	if s.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, processing_date, outcome, closure_reason, records_loaded, tables_loaded,
		error_message, execution_ms, recorded_at FROM %s ORDER BY run_id, processing_date`, outcomesTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.DateOutcomeRecord
	for rows.Next() {
		var record schema.DateOutcomeRecord
		var recorded dbTime
		if err := rows.Scan(&record.RunID, &record.ProcessingDate, &record.Outcome, &record.ClosureReason,
			&record.RecordsLoaded, &record.TablesLoaded, &record.ErrorMessage, &record.ExecutionMs, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		record.RecordedAt = recorded.Time
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return results, nil
}
