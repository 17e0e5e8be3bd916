package schema

import (
	"encoding/json"
	"time"
)

// OutcomeResult is the closed set of DateOutcome variants.
// Only the types in this file implement it.
type OutcomeResult interface {
	Kind() OutcomeKind
	outcome()
}

// Success means the date's files were transformed and loaded.
type Success struct {
	RecordsLoaded int
	TablesLoaded  int
}

// ClosureProcessed means placeholder rows were loaded for a closed date.
type ClosureProcessed struct {
	Reason        ClosureReason
	RecordsLoaded int
}

// NoFiles means the download returned nothing for the date.
type NoFiles struct{}

// NoData means no downloaded file produced a payload.
type NoData struct{}

// Failed means the date could not be processed.
type Failed struct {
	Err error
}

func (Success) outcome()          {}
func (ClosureProcessed) outcome() {}
func (NoFiles) outcome()          {}
func (NoData) outcome()           {}
func (Failed) outcome()           {}

// Kind implements OutcomeResult.
func (Success) Kind() OutcomeKind { return SuccessKind }

// Kind implements OutcomeResult.
func (ClosureProcessed) Kind() OutcomeKind { return ClosureProcessedKind }

// Kind implements OutcomeResult.
func (NoFiles) Kind() OutcomeKind { return NoFilesKind }

// Kind implements OutcomeResult.
func (NoData) Kind() OutcomeKind { return NoDataKind }

// Kind implements OutcomeResult.
func (Failed) Kind() OutcomeKind { return FailedKind }

// DateOutcome is the immutable result of processing exactly one date.
type DateOutcome struct {
	Date          ProcessingDate
	Result        OutcomeResult
	ExecutionTime time.Duration
	Warnings      []string // Non-fatal validation issues
}

// RecordsLoaded returns the number of rows written for the date.
func (o DateOutcome) RecordsLoaded() int {
	switch r := o.Result.(type) {
	case Success:
		return r.RecordsLoaded
	case ClosureProcessed:
		return r.RecordsLoaded
	default:
		return 0
	}
}

// Error returns the failure message, or empty when the outcome did not fail.
func (o DateOutcome) Error() string {
	if f, ok := o.Result.(Failed); ok && f.Err != nil {
		return f.Err.Error()
	}
	return ""
}

// Kind returns the variant name. A nil Result is reported as failed.
func (o DateOutcome) Kind() OutcomeKind {
	if o.Result == nil {
		return FailedKind
	}
	return o.Result.Kind()
}

// OutcomeRecord is the flat, persisted form of a DateOutcome.
type OutcomeRecord struct {
	Date            ProcessingDate `json:"date"`
	Outcome         OutcomeKind    `json:"outcome"`
	ClosureReason   ClosureReason  `json:"closure_reason,omitempty"`
	RecordsLoaded   int            `json:"records_loaded"`
	TablesLoaded    int            `json:"tables_loaded"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// Record flattens the outcome for persistence.
func (o DateOutcome) Record() OutcomeRecord {
	rec := OutcomeRecord{
		Date:            o.Date,
		Outcome:         o.Kind(),
		RecordsLoaded:   o.RecordsLoaded(),
		Error:           o.Error(),
		ExecutionTimeMs: o.ExecutionTime.Milliseconds(),
		Warnings:        o.Warnings,
	}
	switch r := o.Result.(type) {
	case Success:
		rec.TablesLoaded = r.TablesLoaded
	case ClosureProcessed:
		rec.ClosureReason = r.Reason
	}
	return rec
}

// MarshalJSON encodes the outcome in its flat record form.
func (o DateOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Record())
}
