// Package transform converts staged POS CSV exports into warehouse payloads.
package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// ColumnFunc rewrites one cell value.
type ColumnFunc func(string) string

// specialColumns lists per-table cell rewrites keyed by sanitized column name.
var specialColumns = map[string]map[string]ColumnFunc{
	"kitchen_timings": {"fulfillment_time": ConvertToMinutes},
	"order_details":   {"duration_opened_to_paid": ConvertToMinutes},
}

var (
	parenPattern      = regexp.MustCompile(`\(([^)]*)\)`)
	invalidPattern    = regexp.MustCompile(`[^a-z0-9_]`)
	underscorePattern = regexp.MustCompile(`_+`)
	clockPattern      = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}$`)
	hourPattern       = regexp.MustCompile(`(\d+)\s*hour`)
	minutePattern     = regexp.MustCompile(`(\d+)\s*minute`)
	secondPattern     = regexp.MustCompile(`(\d+)\s*second`)
)

// SanitizeColumnName maps an export header to a warehouse column name.
// "Duration (Opened to Paid)" becomes "duration_opened_to_paid".
func SanitizeColumnName(name string) string {
	s := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	s = strings.ReplaceAll(s, " ", "_")
	s = parenPattern.ReplaceAllString(s, "_$1")
	s = strings.ReplaceAll(s, "/", "_")
	s = invalidPattern.ReplaceAllString(s, "")
	s = underscorePattern.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// ConvertToMinutes turns "HH:MM:SS" or "2 hours, 15 minutes, 30 seconds" into
// total minutes with one decimal place. Unrecognized input yields "0.0".
func ConvertToMinutes(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "0.0"
	}

	var hours, minutes, seconds int
	if clockPattern.MatchString(value) {
		parts := strings.Split(value, ":")
		hours, _ = strconv.Atoi(parts[0])
		minutes, _ = strconv.Atoi(parts[1])
		seconds, _ = strconv.Atoi(parts[2])
	} else {
		lower := strings.ToLower(value)
		hours = firstInt(hourPattern, lower)
		minutes = firstInt(minutePattern, lower)
		seconds = firstInt(secondPattern, lower)
	}

	total := float64(hours*60+minutes) + float64(seconds)/60
	return strconv.FormatFloat(total, 'f', 1, 64)
}

func firstInt(pattern *regexp.Regexp, s string) int {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// CSVTransformer reads a staged export and produces a typed payload.
type CSVTransformer struct {
	logger zerolog.Logger
}

var _ contract.Transformer = &CSVTransformer{} // Compile-time check

// NewCSVTransformer creates a CSVTransformer.
func NewCSVTransformer(logger zerolog.Logger) *CSVTransformer {
	return &CSVTransformer{logger: contract.Component(logger, "transform")}
}

// Transform implements the Transformer interface.
func (t *CSVTransformer) Transform(ctx context.Context, file schema.LocalFile, date schema.ProcessingDate) (*schema.TablePayload, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer func() { _ = f.Close() }()

	table := schema.TableForFile(file.Name)
	payload, err := Parse(ctx, f, table, date)
	if err != nil {
		return nil, fmt.Errorf("failed to transform %s: %w", file.Name, err)
	}
	if payload == nil {
		t.logger.Debug().Str("file", file.Name).Msg("File has no rows")
		return nil, nil
	}
	payload.Source = file.Name
	t.logger.Debug().Str("file", file.Name).Str("table", table).Int("rows", len(payload.Rows)).Msg("Transformed file")
	return payload, nil
}

// Parse reads CSV rows from r into a payload for table.
// It returns nil when the input has a header but no data rows.
func Parse(ctx context.Context, r io.Reader, table string, date schema.ProcessingDate) (*schema.TablePayload, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	columns := uniqueColumns(header)
	special := specialColumns[table]
	iso := date.ISO()

	var rows []schema.Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(schema.Row, len(columns)+2)
		for i, col := range columns {
			var value string
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if fn, ok := special[col]; ok {
				value = fn(value)
			}
			if value == "" {
				row[col] = nil
			} else {
				row[col] = value
			}
		}
		row[schema.ProcessingDateColumn] = iso
		row[schema.ClosureIndicatorColumn] = false
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return &schema.TablePayload{
		Table:   table,
		Date:    date,
		Columns: append(columns, schema.ProcessingDateColumn, schema.ClosureIndicatorColumn),
		Rows:    rows,
	}, nil
}

// uniqueColumns sanitizes headers, naming blanks by position and suffixing duplicates.
// Headers that collide with the stamped columns are suffixed as well.
func uniqueColumns(header []string) []string {
	seen := make(map[string]int, len(header)+2)
	seen[schema.ProcessingDateColumn] = 1
	seen[schema.ClosureIndicatorColumn] = 1
	columns := make([]string, len(header))
	for i, h := range header {
		col := SanitizeColumnName(h)
		if col == "" {
			col = fmt.Sprintf("column_%d", i+1)
		}
		seen[col]++
		if n := seen[col]; n > 1 {
			col = fmt.Sprintf("%s_%d", col, n)
		}
		columns[i] = col
	}
	return columns
}
