// Package schema has models and constants for all parts of backfill.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of a ProcessingDate.
const DateLayout = "20060102"

// ISODateLayout is the format stamped into warehouse date columns.
const ISODateLayout = "2006-01-02"

// ProcessingDate is a calendar day in YYYYMMDD form.
// Lexical order of valid values equals calendar order.
type ProcessingDate string

// ParseProcessingDate validates s as a YYYYMMDD calendar day.
func ParseProcessingDate(s string) (ProcessingDate, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return "", fmt.Errorf("date %q must be in YYYYMMDD format", s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("date %q is not a valid calendar day: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the ProcessingDate containing t.
func DateOf(t time.Time) ProcessingDate {
	return ProcessingDate(t.Format(DateLayout))
}

// Time returns midnight UTC of the date. Invalid dates return the zero time.
func (d ProcessingDate) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ISO returns the date as YYYY-MM-DD.
func (d ProcessingDate) ISO() string {
	return d.Time().Format(ISODateLayout)
}

// AddDays returns the date n calendar days later.
// Results outside years 0001-9999 have no YYYYMMDD form and return "".
func (d ProcessingDate) AddDays(n int) ProcessingDate {
	t := d.Time().AddDate(0, 0, n)
	if y := t.Year(); y < 1 || y > 9999 {
		return ""
	}
	return DateOf(t)
}

// String implements fmt.Stringer.
func (d ProcessingDate) String() string {
	return string(d)
}

// FileStat holds probe statistics for one remote file, gathered without a full download.
type FileStat struct {
	Name      string          `json:"name"`
	Records   int             `json:"records"`
	Sales     decimal.Decimal `json:"sales"`
	SizeBytes int64           `json:"size_bytes"`
}

// FileAnalysis summarizes a date's probe results for the business calendar.
type FileAnalysis struct {
	FilesFound        int
	TotalRecords      int
	TotalSales        decimal.Decimal
	HasMeaningfulData bool
	Files             map[string]FileStat // Per-file details keyed by file name
}

// ThresholdConfig holds the closure detection thresholds.
type ThresholdConfig struct {
	MinRecords int
	MinFiles   int
	MinSales   decimal.Decimal
}

// ClosureDecision is the result of classifying a date.
type ClosureDecision struct {
	IsClosure bool
	Reason    ClosureReason // Empty when IsClosure is false
}

// Row is a single warehouse row keyed by column name.
type Row map[string]any

// TablePayload is a typed batch of rows bound for one warehouse table.
type TablePayload struct {
	Table   string
	Date    ProcessingDate
	Columns []string // Column order for display and validation
	Rows    []Row
	Source  string // Originating file name, empty for placeholders
}

// ClosureRecordSet maps table name to its single placeholder payload.
type ClosureRecordSet map[string]TablePayload

// LocalFile is a file staged on local disk for transformation.
type LocalFile struct {
	Name string
	Path string
}

// ValidationResult is returned by post-load validation.
type ValidationResult struct {
	Success bool
	Issues  []string
}

// RunConfig controls batch scheduling. It is read-only during a run.
type RunConfig struct {
	MaxWorkers   int
	BatchSize    int
	SkipExisting bool
	ValidateData bool
}
