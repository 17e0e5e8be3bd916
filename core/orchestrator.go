package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/huangsam/backfill/core/calendar"
	"github.com/huangsam/backfill/core/dates"
	"github.com/huangsam/backfill/core/retry"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned when RunBackfill is called while another run is active.
var ErrRunInProgress = errors.New("a backfill run is already in progress")

// SummaryWriter uploads a summary to remote object storage.
type SummaryWriter interface {
	WriteURI(ctx context.Context, uri string, data []byte, contentType string) error
}

// Deps are the collaborators of the Orchestrator. Validator, Tracker and Remote may be nil.
type Deps struct {
	Extractor   contract.Extractor
	Transformer contract.Transformer
	Loader      contract.Loader
	Oracle      contract.ProcessedDateOracle
	Validator   contract.Validator
	Tracker     contract.RunTracker
	Remote      SummaryWriter
	Logger      zerolog.Logger
}

// Options configure the Orchestrator.
type Options struct {
	Run          schema.RunConfig
	Thresholds   schema.ThresholdConfig
	Retry        retry.Policy
	StagingDir   string
	DefaultStart string
	DefaultEnd   string
	SourceType   string // manual, scheduled, backfill
}

// OptionsFromConfig derives Options from the validated CLI configuration.
func OptionsFromConfig(cfg *contract.Config) Options {
	return Options{
		Run:          cfg.Run,
		Thresholds:   cfg.Thresholds,
		Retry:        retry.FromSettings(cfg.Retry),
		StagingDir:   cfg.StagingDir,
		DefaultStart: cfg.DefaultStart,
		DefaultEnd:   cfg.DefaultEnd,
		SourceType:   "backfill",
	}
}

// Orchestrator resolves, filters and schedules a backfill, and exposes its progress.
type Orchestrator struct {
	deps     Deps
	opts     Options
	calendar *calendar.Calendar
	resolver *dates.Resolver
	logger   zerolog.Logger

	running atomic.Bool
	current atomic.Pointer[RunStatistics]
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	logger := contract.Component(deps.Logger, "orchestrator")
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		calendar: calendar.New(opts.Thresholds, contract.Component(deps.Logger, "calendar")),
		resolver: dates.NewResolver(deps.Oracle, opts.Retry, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Calendar returns the business calendar in use.
func (o *Orchestrator) Calendar() *calendar.Calendar {
	return o.calendar
}

// NewRunID returns an identifier like run_1712188800_1a2b3c4d.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run_%d_%s", now.Unix(), uuid.NewString()[:8])
}

// validate checks options that must hold before any date is scheduled.
func (o *Orchestrator) validate() error {
	if o.opts.Run.MaxWorkers <= 0 {
		return contract.NewConfigurationError("max-workers", fmt.Sprint(o.opts.Run.MaxWorkers), "must be greater than 0")
	}
	if o.opts.Run.BatchSize <= 0 {
		return contract.NewConfigurationError("batch-size", fmt.Sprint(o.opts.Run.BatchSize), "must be greater than 0")
	}
	return o.opts.Retry.Validate()
}

// Plan returns the dates a run with req would process.
// Explicitly named dates are never filtered against the warehouse.
func (o *Orchestrator) Plan(ctx context.Context, req dates.Request) ([]schema.ProcessingDate, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	candidates, err := dates.Resolve(req, o.opts.DefaultStart, o.opts.DefaultEnd)
	if err != nil {
		return nil, err
	}
	if req.Explicit() {
		return candidates, nil
	}
	return o.resolver.FilterUnprocessed(ctx, candidates, o.opts.Run.SkipExisting)
}

// RunBackfill processes every planned date and returns the run summary.
// Errors are only returned before processing begins; once dates are
// scheduled, per-date failures are reported in the summary.
func (o *Orchestrator) RunBackfill(ctx context.Context, req dates.Request) (schema.RunSummary, error) {
	work, err := o.acquire(ctx, req)
	if err != nil {
		return schema.RunSummary{}, err
	}
	defer o.running.Store(false)
	return o.execute(ctx, work), nil
}

// StartBackfill plans req and processes it in the background. Anything that
// would make RunBackfill fail, such as ErrRunInProgress or a
// *contract.ConfigurationError, is returned before the run starts. The channel
// receives the summary once and is then closed.
func (o *Orchestrator) StartBackfill(ctx context.Context, req dates.Request) (<-chan schema.RunSummary, error) {
	work, err := o.acquire(ctx, req)
	if err != nil {
		return nil, err
	}
	done := make(chan schema.RunSummary, 1)
	go func() {
		defer close(done)
		defer o.running.Store(false)
		done <- o.execute(ctx, work)
	}()
	return done, nil
}

// acquire claims the run slot and plans req. The slot is released on error.
func (o *Orchestrator) acquire(ctx context.Context, req dates.Request) ([]schema.ProcessingDate, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	work, err := o.Plan(ctx, req)
	if err != nil {
		o.running.Store(false)
		return nil, err
	}
	return work, nil
}

// execute processes work and records the run.
func (o *Orchestrator) execute(ctx context.Context, work []schema.ProcessingDate) schema.RunSummary {
	runID := NewRunID(o.now())
	stats := NewRunStatistics(runID, len(work))
	o.current.Store(stats)
	logger := o.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Int("dates", len(work)).
		Int("max_workers", o.opts.Run.MaxWorkers).
		Int("batch_size", o.opts.Run.BatchSize).
		Msg("Starting backfill")

	// Tracking must outlive a cancelled run so the final status is written.
	trackCtx := context.WithoutCancel(ctx)
	o.beginRun(trackCtx, runID, stats)

	probe, download, load := PoliciesFrom(o.opts.Retry)
	executor := NewExecutor(ExecutorDeps{
		Extractor:   o.deps.Extractor,
		Transformer: o.deps.Transformer,
		Loader:      o.deps.Loader,
		Validator:   o.deps.Validator,
		Calendar:    o.calendar,
		Logger:      contract.Component(logger, "executor"),
	}, ExecutorOptions{
		RunID:          runID,
		StagingRoot:    o.opts.StagingDir,
		ValidateData:   o.opts.Run.ValidateData,
		ProbePolicy:    probe,
		DownloadPolicy: download,
		LoadPolicy:     load,
	})

	scheduler := NewScheduler(executor, o.opts.Run, contract.Component(logger, "scheduler")).
		OnOutcome(func(_ context.Context, outcome schema.DateOutcome) {
			if o.deps.Tracker == nil {
				return
			}
			if err := o.deps.Tracker.RecordOutcome(trackCtx, runID, outcome); err != nil {
				logger.Warn().Err(err).Str("date", outcome.Date.String()).Msg("Failed to record outcome")
			}
		})
	scheduler.Run(ctx, work, stats)

	summary := stats.Finalize()
	if o.deps.Tracker != nil {
		if err := o.deps.Tracker.EndRun(trackCtx, runID, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run completion")
		}
	}
	if o.opts.StagingDir != "" {
		if err := os.RemoveAll(filepath.Join(o.opts.StagingDir, runID)); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove run staging dir")
		}
	}

	logger.Info().
		Int("processed", summary.ProcessedDates).
		Int("closures", summary.ClosureDates).
		Int("failed", summary.FailedDates).
		Int("records", summary.TotalRecords).
		Str("duration", summary.Duration).
		Float64("success_rate", summary.SuccessRate).
		Msg("Backfill complete")
	return summary
}

func (o *Orchestrator) beginRun(ctx context.Context, runID string, stats *RunStatistics) {
	if o.deps.Tracker == nil {
		return
	}
	params := map[string]any{
		"max_workers":   o.opts.Run.MaxWorkers,
		"batch_size":    o.opts.Run.BatchSize,
		"skip_existing": o.opts.Run.SkipExisting,
		"validate_data": o.opts.Run.ValidateData,
		"total_dates":   stats.total,
		"thresholds":    o.calendar.ThresholdSummary(),
	}
	err := o.deps.Tracker.BeginRun(ctx, schema.RunRecord{
		RunID:        runID,
		StartedAt:    stats.startTime,
		SourceType:   o.opts.SourceType,
		ConfigParams: params,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run start")
	}
}

// GetProgress returns the progress of the current or most recent run.
// It returns a zero snapshot before any run has started.
func (o *Orchestrator) GetProgress() schema.ProgressSnapshot {
	if s := o.current.Load(); s != nil {
		return s.Snapshot()
	}
	return schema.ProgressSnapshot{}
}

// PersistSummary writes the summary as indented JSON to a local path or a gs:// URI.
// Local files are replaced atomically; gs:// objects are never overwritten.
func (o *Orchestrator) PersistSummary(ctx context.Context, summary schema.RunSummary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if strings.HasPrefix(path, "gs://") {
		if o.deps.Remote == nil {
			return fmt.Errorf("cannot write %s: no object storage client configured", path)
		}
		if err := o.deps.Remote.WriteURI(ctx, path, data, "application/json"); err != nil {
			return fmt.Errorf("failed to upload summary: %w", err)
		}
		o.logger.Info().Str("path", path).Msg("Summary uploaded")
		return nil
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	o.logger.Info().Str("path", path).Msg("Summary saved")
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
