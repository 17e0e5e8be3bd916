// Package calendar decides whether a date is a business closure and builds
// the placeholder rows that keep the warehouse calendar complete.
package calendar

import (
	"fmt"

	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Analyze folds per-file probe statistics into a FileAnalysis.
// A date has meaningful data when any file holds more than one record,
// or when the totals reach both the record and file thresholds.
func Analyze(stats []schema.FileStat, t schema.ThresholdConfig) schema.FileAnalysis {
	analysis := schema.FileAnalysis{
		TotalSales: decimal.Zero,
		Files:      make(map[string]schema.FileStat, len(stats)),
	}
	for _, s := range stats {
		analysis.FilesFound++
		analysis.TotalRecords += s.Records
		analysis.TotalSales = analysis.TotalSales.Add(s.Sales)
		analysis.Files[s.Name] = s
		if s.Records > 1 {
			analysis.HasMeaningfulData = true
		}
	}
	if analysis.TotalRecords >= t.MinRecords && analysis.FilesFound >= t.MinFiles {
		analysis.HasMeaningfulData = true
	}
	return analysis
}

// Classify applies the closure rules in order; the first match wins.
func Classify(a schema.FileAnalysis, t schema.ThresholdConfig) schema.ClosureDecision {
	switch {
	case a.FilesFound == 0:
		return closed(schema.NoFilesReason)
	case a.TotalRecords < t.MinRecords:
		return closed(schema.LowActivityReason)
	case a.FilesFound < t.MinFiles:
		return closed(schema.LowActivityReason)
	case a.TotalSales.IsPositive() && a.TotalSales.LessThan(t.MinSales):
		return closed(schema.NoSalesReason)
	case !a.HasMeaningfulData:
		return closed(schema.LowActivityReason)
	default:
		return schema.ClosureDecision{}
	}
}

func closed(reason schema.ClosureReason) schema.ClosureDecision {
	return schema.ClosureDecision{IsClosure: true, Reason: reason}
}

// Synthesize builds one placeholder row per registered table for a closed date.
func Synthesize(date schema.ProcessingDate, reason schema.ClosureReason) schema.ClosureRecordSet {
	iso := date.ISO()
	note := "Business Closed - " + reason.Label()

	set := make(schema.ClosureRecordSet, len(schema.Tables))
	for _, spec := range schema.Tables {
		row := make(schema.Row, len(spec.Template)+3)
		columns := make([]string, 0, len(spec.Template)+3)
		for _, col := range spec.Template {
			switch col.Kind {
			case schema.NoteColumn:
				row[col.Name] = note
			case schema.DateColumn:
				row[col.Name] = iso
			default:
				row[col.Name] = col.Value
			}
			columns = append(columns, col.Name)
		}
		row[schema.ProcessingDateColumn] = iso
		row[schema.ClosureIndicatorColumn] = true
		row[schema.ClosureReasonColumn] = string(reason)
		columns = append(columns, schema.ProcessingDateColumn, schema.ClosureIndicatorColumn, schema.ClosureReasonColumn)

		set[spec.Name] = schema.TablePayload{
			Table:   spec.Name,
			Date:    date,
			Columns: columns,
			Rows:    []schema.Row{row},
		}
	}
	return set
}

// BusinessMetricsFilter is the SQL predicate that excludes placeholder rows from business metrics.
func BusinessMetricsFilter() string {
	return "(closure_indicator IS NULL OR closure_indicator = FALSE)"
}

// Calendar binds thresholds to a logger for use inside the pipeline.
type Calendar struct {
	thresholds schema.ThresholdConfig
	logger     zerolog.Logger
}

// New creates a Calendar.
func New(t schema.ThresholdConfig, logger zerolog.Logger) *Calendar {
	return &Calendar{thresholds: t, logger: logger}
}

// Thresholds returns the configured thresholds.
func (c *Calendar) Thresholds() schema.ThresholdConfig {
	return c.thresholds
}

// Evaluate analyzes probe statistics and classifies the date, logging the decision.
func (c *Calendar) Evaluate(date schema.ProcessingDate, stats []schema.FileStat) (schema.FileAnalysis, schema.ClosureDecision) {
	analysis := Analyze(stats, c.thresholds)
	decision := Classify(analysis, c.thresholds)

	var event *zerolog.Event
	if decision.IsClosure {
		event = c.logger.Info().Str("reason", string(decision.Reason))
	} else {
		event = c.logger.Debug()
	}
	event.Str("date", date.String()).
		Int("files", analysis.FilesFound).
		Int("records", analysis.TotalRecords).
		Str("sales", analysis.TotalSales.StringFixed(2)).
		Bool("closure", decision.IsClosure).
		Msg("Classified date")
	return analysis, decision
}

// ThresholdSummary describes the active thresholds and closure reasons.
func (c *Calendar) ThresholdSummary() map[string]string {
	summary := map[string]string{
		"min_records": fmt.Sprint(c.thresholds.MinRecords),
		"min_files":   fmt.Sprint(c.thresholds.MinFiles),
		"min_sales":   c.thresholds.MinSales.StringFixed(2),
	}
	for _, r := range schema.AllClosureReasons {
		summary["reason_"+string(r)] = r.Label()
	}
	return summary
}
