package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/huangsam/backfill/schema"
)

// payloadColumns are stored in dedicated columns and stripped from the JSON payload.
var payloadColumns = []string{schema.ProcessingDateColumn, schema.ClosureIndicatorColumn, schema.ClosureReasonColumn}

// Load implements the Loader interface. Rows already stored for the same table and
// date are replaced in a single transaction so reloading a date is idempotent.
func (s *Store) Load(ctx context.Context, table string, payload schema.TablePayload) (int, error) {
	if table == "" {
		return 0, fmt.Errorf("table name is required")
	}
	if s.disabled() {
		return len(payload.Rows), nil
	}

	iso := payload.Date.ISO()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load of %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteQuery := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE table_name = ? AND processing_date = ?", rowsTable))
	if _, err := tx.ExecContext(ctx, deleteQuery, table, iso); err != nil {
		return 0, fmt.Errorf("failed to clear %s for %s: %w", table, iso, err)
	}

	insertQuery := s.rebind(fmt.Sprintf(`INSERT INTO %s (table_name, processing_date, row_index, closure_indicator,
		closure_reason, source_file, payload, loaded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, rowsTable))
	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	loadedAt := s.formatTime(s.now())
	for i, row := range payload.Rows {
		closure, _ := row[schema.ClosureIndicatorColumn].(bool)
		reason, _ := row[schema.ClosureReasonColumn].(string)
		body, err := encodeRow(row)
		if err != nil {
			return 0, fmt.Errorf("failed to encode row %d of %s: %w", i, table, err)
		}
		if _, err := stmt.ExecContext(ctx, table, iso, i, closure, nullString(reason), nullString(payload.Source), body, loadedAt); err != nil {
			return 0, fmt.Errorf("failed to insert row %d into %s: %w", i, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load of %s: %w", table, err)
	}
	return len(payload.Rows), nil
}

// encodeRow serializes the business columns of row as JSON.
func encodeRow(row schema.Row) (string, error) {
	fields := make(map[string]any, len(row))
	for k, v := range row {
		if !slices.Contains(payloadColumns, k) {
			fields[k] = v
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// QueryProcessedDates implements the ProcessedDateOracle interface.
// A date counts as processed once any table holds a row for it.
func (s *Store) QueryProcessedDates(ctx context.Context) ([]schema.ProcessingDate, error) {
	if s.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT DISTINCT processing_date FROM %s ORDER BY processing_date", rowsTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []schema.ProcessingDate
	for rows.Next() {
		var iso string
		if err := rows.Scan(&iso); err != nil {
			return nil, fmt.Errorf("failed to scan processed date: %w", err)
		}
		dates = append(dates, schema.ProcessingDate(strings.ReplaceAll(iso, "-", "")))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processed dates: %w", err)
	}
	return dates, nil
}

// Validate implements the Validator interface by comparing stored row counts with the payloads.
func (s *Store) Validate(ctx context.Context, date schema.ProcessingDate, payloads []schema.TablePayload) (schema.ValidationResult, error) {
	result := schema.ValidationResult{Success: true}
	if s.disabled() {
		return result, nil
	}

	expected := make(map[string]int, len(payloads))
	for _, p := range payloads {
		expected[p.Table] += len(p.Rows)
	}
	tables := make([]string, 0, len(expected))
	for table := range expected {
		tables = append(tables, table)
	}
	slices.Sort(tables)

	query := s.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE table_name = ? AND processing_date = ?", rowsTable))
	for _, table := range tables {
		var count int
		if err := s.db.QueryRowContext(ctx, query, table, date.ISO()).Scan(&count); err != nil {
			return result, fmt.Errorf("failed to count %s rows: %w", table, err)
		}
		if count != expected[table] {
			result.Issues = append(result.Issues, fmt.Sprintf("%s: expected %d rows for %s, found %d", table, expected[table], date.ISO(), count))
		}
	}
	result.Success = len(result.Issues) == 0
	return result, nil
}
