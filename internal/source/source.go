// Package source implements extractors for the daily POS export drop.
// Both layouts keep one folder per day: <root>/<YYYYMMDD>/<Export>.csv.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/huangsam/backfill/schema"
	"github.com/shopspring/decimal"
)

// SalesColumn is the sanitized header summed into FileStat.Sales.
const SalesColumn = "total"

// ProbeCSV counts the data rows of a CSV export and sums its sales column.
// Unparseable sales cells are ignored.
func ProbeCSV(name string, r io.Reader, size int64) (schema.FileStat, error) {
	stat := schema.FileStat{Name: name, Sales: decimal.Zero, SizeBytes: size}

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return stat, nil
	}
	if err != nil {
		return stat, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	salesIdx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), SalesColumn) {
			salesIdx = i
			break
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stat, fmt.Errorf("failed to read %s: %w", name, err)
		}
		stat.Records++
		if salesIdx >= 0 && salesIdx < len(record) {
			if amount, ok := ParseAmount(record[salesIdx]); ok {
				stat.Sales = stat.Sales.Add(amount)
			}
		}
	}
	return stat, nil
}

// ParseAmount parses a currency cell such as "$1,234.50" or "(12.00)".
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// isExport reports whether a file name looks like a daily CSV export.
func isExport(name string) bool {
	return strings.EqualFold(pathExt(name), ".csv") && !strings.HasPrefix(baseName(name), ".")
}

func baseName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func pathExt(name string) string {
	base := baseName(name)
	if i := strings.LastIndex(base, "."); i >= 0 {
		return base[i:]
	}
	return ""
}
