package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OutcomeHook observes each outcome on the aggregator goroutine.
type OutcomeHook func(ctx context.Context, outcome schema.DateOutcome)

// Scheduler runs dates in sequential batches with a bounded pool per batch.
type Scheduler struct {
	processor DateProcessor
	cfg       schema.RunConfig
	logger    zerolog.Logger
	onOutcome OutcomeHook
}

// NewScheduler creates a Scheduler. cfg must have positive MaxWorkers and BatchSize.
func NewScheduler(processor DateProcessor, cfg schema.RunConfig, logger zerolog.Logger) *Scheduler {
	return &Scheduler{processor: processor, cfg: cfg, logger: logger}
}

// OnOutcome registers a hook called once per outcome, never concurrently.
func (s *Scheduler) OnOutcome(hook OutcomeHook) *Scheduler {
	s.onOutcome = hook
	return s
}

// Run processes dates and records every outcome into stats. When ctx is
// cancelled no further batches start; the dates left behind are recorded as
// failed so that every date still has exactly one outcome.
func (s *Scheduler) Run(ctx context.Context, dates []schema.ProcessingDate, stats *RunStatistics) {
	batchSize := max(s.cfg.BatchSize, 1)
	totalBatches := (len(dates) + batchSize - 1) / batchSize

	batchNum := 0
	for batch := range slices.Chunk(dates, batchSize) {
		batchNum++
		if err := ctx.Err(); err != nil {
			s.abandon(ctx, batch, err, stats)
			continue
		}

		start := time.Now()
		s.logger.Info().
			Int("batch", batchNum).
			Int("batches", totalBatches).
			Str("first", batch[0].String()).
			Str("last", batch[len(batch)-1].String()).
			Msg("Starting batch")

		s.runBatch(ctx, batch, stats)

		snap := stats.Snapshot()
		s.logger.Info().
			Int("batch", batchNum).
			Int("batches", totalBatches).
			Dur("elapsed", time.Since(start)).
			Int("processed", snap.ProcessedDates).
			Int("closures", snap.ClosureDates).
			Int("failed", snap.FailedDates).
			Float64("progress", snap.ProgressPercentage).
			Msg("Batch complete")
	}
}

// runBatch fans the batch out to at most MaxWorkers goroutines and waits for
// the aggregator to record every outcome.
func (s *Scheduler) runBatch(ctx context.Context, batch []schema.ProcessingDate, stats *RunStatistics) {
	results := make(chan schema.DateOutcome, len(batch))
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		for o := range results {
			s.record(ctx, o, stats)
		}
	}()

	var g errgroup.Group
	g.SetLimit(max(s.cfg.MaxWorkers, 1))
	for _, date := range batch {
		g.Go(func() error {
			results <- s.process(ctx, date)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-aggregated
}

// process runs one date, converting a panic escaping the processor into a failure.
func (s *Scheduler) process(ctx context.Context, date schema.ProcessingDate) (outcome schema.DateOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("date", date.String()).Interface("panic", r).Msg("Worker panicked")
			outcome = schema.DateOutcome{Date: date, Result: schema.Failed{Err: fmt.Errorf("worker panic: %v", r)}}
		}
	}()
	outcome = s.processor.ProcessDate(ctx, date)
	if outcome.Date == "" {
		outcome.Date = date
	}
	return outcome
}

func (s *Scheduler) abandon(ctx context.Context, batch []schema.ProcessingDate, cause error, stats *RunStatistics) {
	s.logger.Warn().Err(cause).Int("dates", len(batch)).Msg("Run cancelled, skipping batch")
	for _, date := range batch {
		s.record(ctx, schema.DateOutcome{
			Date:   date,
			Result: schema.Failed{Err: fmt.Errorf("not started: %w", cause)},
		}, stats)
	}
}

func (s *Scheduler) record(ctx context.Context, o schema.DateOutcome, stats *RunStatistics) {
	stats.Record(o)
	if s.onOutcome != nil {
		s.onOutcome(ctx, o)
	}
}
