package core

import (
	"cmp"
	"slices"
	"sync/atomic"
	"time"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
)

// RunStatistics accumulates the outcomes of one run.
// Record is called only by the scheduler's aggregator; Snapshot is safe from any goroutine.
type RunStatistics struct {
	runID     string
	total     int
	startTime time.Time

	processed atomic.Int64
	closures  atomic.Int64
	failed    atomic.Int64
	records   atomic.Int64
	running   atomic.Bool

	// Owned by the aggregator until Finalize.
	failedDates  []schema.ProcessingDate
	closureDates []schema.ProcessingDate
	outcomes     []schema.OutcomeRecord
}

// NewRunStatistics creates statistics for a run over total dates, starting now.
func NewRunStatistics(runID string, total int) *RunStatistics {
	s := &RunStatistics{
		runID:     runID,
		total:     total,
		startTime: time.Now(),
		outcomes:  make([]schema.OutcomeRecord, 0, total),
	}
	s.running.Store(true)
	return s
}

// RunID returns the identifier of the run.
func (s *RunStatistics) RunID() string { return s.runID }

// Record classifies one outcome. NoFiles and NoData count as processed.
func (s *RunStatistics) Record(o schema.DateOutcome) {
	switch o.Kind() {
	case schema.SuccessKind, schema.NoFilesKind, schema.NoDataKind:
		s.processed.Add(1)
	case schema.ClosureProcessedKind:
		s.closures.Add(1)
		s.closureDates = append(s.closureDates, o.Date)
	default:
		s.failed.Add(1)
		s.failedDates = append(s.failedDates, o.Date)
	}
	s.records.Add(int64(o.RecordsLoaded()))
	s.outcomes = append(s.outcomes, o.Record())
}

// Snapshot returns a read-only view of the progress so far.
func (s *RunStatistics) Snapshot() schema.ProgressSnapshot {
	snap := schema.ProgressSnapshot{
		RunID:          s.runID,
		Running:        s.running.Load(),
		TotalDates:     s.total,
		ProcessedDates: int(s.processed.Load()),
		ClosureDates:   int(s.closures.Load()),
		FailedDates:    int(s.failed.Load()),
		TotalRecords:   int(s.records.Load()),
	}
	if s.total > 0 {
		done := snap.ProcessedDates + snap.ClosureDates + snap.FailedDates
		snap.ProgressPercentage = float64(done) / float64(s.total) * 100
	}
	return snap
}

// Finalize stops the clock and returns the run summary.
// It must be called once, after every outcome has been recorded.
func (s *RunStatistics) Finalize() schema.RunSummary {
	end := time.Now()
	s.running.Store(false)

	snap := s.Snapshot()
	duration := end.Sub(s.startTime)
	summary := schema.RunSummary{
		RunID:           s.runID,
		TotalDates:      snap.TotalDates,
		ProcessedDates:  snap.ProcessedDates,
		ClosureDates:    snap.ClosureDates,
		FailedDates:     snap.FailedDates,
		TotalRecords:    snap.TotalRecords,
		Duration:        contract.FormatDuration(duration),
		DurationSeconds: duration.Seconds(),
		FailedDateList:  sortedDates(s.failedDates),
		ClosureDateList: sortedDates(s.closureDates),
		StartTime:       s.startTime,
		EndTime:         end,
		Outcomes:        slices.Clone(s.outcomes),
	}
	if s.total > 0 {
		summary.SuccessRate = float64(snap.ProcessedDates+snap.ClosureDates) / float64(s.total) * 100
	}
	slices.SortStableFunc(summary.Outcomes, func(a, b schema.OutcomeRecord) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return summary
}

func sortedDates(in []schema.ProcessingDate) []schema.ProcessingDate {
	out := slices.Clone(in)
	if out == nil {
		out = []schema.ProcessingDate{}
	}
	slices.Sort(out)
	return out
}
