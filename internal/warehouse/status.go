package warehouse

import (
	"context"
	"fmt"

	"github.com/huangsam/backfill/core/calendar"
	"github.com/huangsam/backfill/schema"
)

// GetStatus implements the Warehouse interface.
func (s *Store) GetStatus(ctx context.Context) (schema.WarehouseStatus, error) {
	status := schema.WarehouseStatus{
		Backend:      string(s.backend),
		Connected:    s.db != nil,
		TableSizes:   make(map[string]int64),
		BusinessRows: make(map[string]int64),
	}
	if s.disabled() {
		return status, nil
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", runsTable))
	if err := row.Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}
	if status.TotalRuns > 0 {
		var lastRun dbTime
		row = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT run_id, started_at FROM %s ORDER BY started_at DESC, run_id DESC LIMIT 1", runsTable))
		if err := row.Scan(&status.LastRunID, &lastRun); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		status.LastRunTime = lastRun.Time
	}

	row = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT processing_date) FROM %s", rowsTable))
	if err := row.Scan(&status.ProcessedDates); err != nil {
		return status, fmt.Errorf("failed to count processed dates: %w", err)
	}
	row = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT processing_date) FROM %s WHERE closure_indicator = TRUE", rowsTable))
	if err := row.Scan(&status.ClosureDates); err != nil {
		return status, fmt.Errorf("failed to count closure dates: %w", err)
	}

	for _, table := range []string{rowsTable, runsTable, outcomesTable} {
		var count int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	business, err := s.BusinessRowCounts(ctx)
	if err != nil {
		return status, err
	}
	status.BusinessRows = business
	return status, nil
}

// BusinessRowCounts returns rows per POS table with closure placeholders filtered out.
func (s *Store) BusinessRowCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	if s.disabled() {
		return counts, nil
	}

	query := fmt.Sprintf("SELECT table_name, COUNT(*) FROM %s WHERE %s GROUP BY table_name", rowsTable, calendar.BusinessMetricsFilter())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count business rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var table string
		var count int64
		if err := rows.Scan(&table, &count); err != nil {
			return nil, fmt.Errorf("failed to scan business rows: %w", err)
		}
		counts[table] = count
	}
	return counts, rows.Err()
}

// ClosureReport lists each closed date with its reason and placeholder row count.
func (s *Store) ClosureReport(ctx context.Context) ([]schema.ClosureReportRow, error) {
	if s.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT processing_date, COALESCE(closure_reason, ''), COUNT(*) FROM %s
		WHERE closure_indicator = TRUE GROUP BY processing_date, closure_reason ORDER BY processing_date`, rowsTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query closures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var report []schema.ClosureReportRow
	for rows.Next() {
		var r schema.ClosureReportRow
		if err := rows.Scan(&r.ProcessingDate, &r.ClosureReason, &r.ClosureRecords); err != nil {
			return nil, fmt.Errorf("failed to scan closure row: %w", err)
		}
		report = append(report, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closures: %w", err)
	}
	return report, nil
}
