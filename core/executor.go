package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/huangsam/backfill/core/calendar"
	"github.com/huangsam/backfill/core/retry"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// DateProcessor turns one date into exactly one outcome. It never returns an error.
type DateProcessor interface {
	ProcessDate(ctx context.Context, date schema.ProcessingDate) schema.DateOutcome
}

// ExecutorDeps are the collaborators used by the Executor.
type ExecutorDeps struct {
	Extractor   contract.Extractor
	Transformer contract.Transformer
	Loader      contract.Loader
	Validator   contract.Validator // Optional
	Calendar    *calendar.Calendar
	Logger      zerolog.Logger
}

// ExecutorOptions control a single run of the Executor.
type ExecutorOptions struct {
	RunID        string
	StagingRoot  string
	ValidateData bool

	ProbePolicy    retry.Policy
	DownloadPolicy retry.Policy
	LoadPolicy     retry.Policy
}

// PoliciesFrom derives the per-operation policies from one shared policy.
func PoliciesFrom(shared retry.Policy) (probe, download, load retry.Policy) {
	return shared.Named("probe"), shared.Named("download"), shared.Named("load")
}

// Executor runs the pipeline for a single date.
type Executor struct {
	deps ExecutorDeps
	opts ExecutorOptions
}

var _ DateProcessor = &Executor{}

// NewExecutor creates an Executor.
func NewExecutor(deps ExecutorDeps, opts ExecutorOptions) *Executor {
	return &Executor{deps: deps, opts: opts}
}

// StagingDir returns the per-date working directory for the run.
func (e *Executor) StagingDir(date schema.ProcessingDate) string {
	return filepath.Join(e.opts.StagingRoot, e.opts.RunID, date.String())
}

// ProcessDate probes, classifies and loads one date. Any error or panic
// is returned as a Failed outcome.
func (e *Executor) ProcessDate(ctx context.Context, date schema.ProcessingDate) (outcome schema.DateOutcome) {
	start := time.Now()
	logger := e.deps.Logger.With().Str("date", date.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered panic while processing date")
			outcome = schema.DateOutcome{Date: date, Result: schema.Failed{Err: fmt.Errorf("panic processing %s: %v", date, r)}}
		}
		outcome.ExecutionTime = time.Since(start)
	}()

	result, warnings, err := e.run(ctx, date, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Date failed")
		return schema.DateOutcome{Date: date, Result: schema.Failed{Err: err}}
	}
	return schema.DateOutcome{Date: date, Result: result, Warnings: warnings}
}

func (e *Executor) run(ctx context.Context, date schema.ProcessingDate, logger zerolog.Logger) (schema.OutcomeResult, []string, error) {
	stats, err := retry.Do(ctx, e.opts.ProbePolicy, logger, func(ctx context.Context) ([]schema.FileStat, error) {
		return e.deps.Extractor.Probe(ctx, date)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("probe %s: %w", date, err)
	}

	_, decision := e.deps.Calendar.Evaluate(date, stats)
	if decision.IsClosure {
		return e.loadClosure(ctx, date, decision.Reason, logger)
	}
	return e.loadFiles(ctx, date, logger)
}

func (e *Executor) loadClosure(ctx context.Context, date schema.ProcessingDate, reason schema.ClosureReason, logger zerolog.Logger) (schema.OutcomeResult, []string, error) {
	set := calendar.Synthesize(date, reason)
	payloads := make([]schema.TablePayload, 0, len(set))
	for _, name := range schema.TableNames() {
		payloads = append(payloads, set[name])
	}

	loaded, err := e.loadAll(ctx, payloads, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("reason", string(reason)).Int("records", loaded).Msg("Loaded closure records")
	return schema.ClosureProcessed{Reason: reason, RecordsLoaded: loaded}, nil, nil
}

func (e *Executor) loadFiles(ctx context.Context, date schema.ProcessingDate, logger zerolog.Logger) (schema.OutcomeResult, []string, error) {
	dir := e.StagingDir(date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Failed to clean staging dir")
		}
	}()

	files, err := retry.Do(ctx, e.opts.DownloadPolicy, logger, func(ctx context.Context) ([]schema.LocalFile, error) {
		return e.deps.Extractor.Download(ctx, date, dir)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download %s: %w", date, err)
	}
	if len(files) == 0 {
		logger.Info().Msg("No files downloaded")
		return schema.NoFiles{}, nil, nil
	}

	payloads := make([]schema.TablePayload, 0, len(files))
	for _, f := range files {
		p, err := e.deps.Transformer.Transform(ctx, f, date)
		if err != nil {
			logger.Warn().Err(err).Str("file", f.Name).Msg("Skipping file that failed to transform")
			continue
		}
		if p == nil || len(p.Rows) == 0 {
			continue
		}
		payloads = append(payloads, *p)
	}
	if len(payloads) == 0 {
		logger.Info().Int("files", len(files)).Msg("No file produced data")
		return schema.NoData{}, nil, nil
	}
	payloads = mergeByTable(payloads)

	loaded, err := e.loadAll(ctx, payloads, logger)
	if err != nil {
		return nil, nil, err
	}

	warnings := e.validate(ctx, date, payloads, logger)
	logger.Info().Int("records", loaded).Int("tables", len(payloads)).Msg("Loaded date")
	return schema.Success{RecordsLoaded: loaded, TablesLoaded: len(payloads)}, warnings, nil
}

// mergeByTable folds payloads that target the same table into one, keeping
// first-seen table order. A load replaces a table's rows for the date, so
// each table must be loaded once.
func mergeByTable(payloads []schema.TablePayload) []schema.TablePayload {
	merged := make([]schema.TablePayload, 0, len(payloads))
	index := make(map[string]int, len(payloads))
	for _, p := range payloads {
		i, ok := index[p.Table]
		if !ok {
			index[p.Table] = len(merged)
			p.Columns = slices.Clone(p.Columns)
			p.Rows = slices.Clone(p.Rows)
			merged = append(merged, p)
			continue
		}
		m := &merged[i]
		for _, c := range p.Columns {
			if !slices.Contains(m.Columns, c) {
				m.Columns = append(m.Columns, c)
			}
		}
		m.Rows = append(m.Rows, p.Rows...)
	}
	return merged
}

// loadAll loads each payload under the load policy and sums the rows written.
func (e *Executor) loadAll(ctx context.Context, payloads []schema.TablePayload, logger zerolog.Logger) (int, error) {
	total := 0
	for _, p := range payloads {
		n, err := retry.Do(ctx, e.opts.LoadPolicy, logger, func(ctx context.Context) (int, error) {
			return e.deps.Loader.Load(ctx, p.Table, p)
		})
		if err != nil {
			return total, fmt.Errorf("load %s: %w", p.Table, err)
		}
		total += n
	}
	return total, nil
}

// validate runs post-load checks. Findings are returned as warnings and never fail the date.
func (e *Executor) validate(ctx context.Context, date schema.ProcessingDate, payloads []schema.TablePayload, logger zerolog.Logger) []string {
	if !e.opts.ValidateData || e.deps.Validator == nil {
		return nil
	}
	result, err := e.deps.Validator.Validate(ctx, date, payloads)
	if err != nil {
		logger.Warn().Err(err).Msg("Validation could not run")
		return []string{fmt.Sprintf("validation error: %v", err)}
	}
	if !result.Success {
		logger.Warn().Strs("issues", result.Issues).Msg("Validation reported issues")
		return result.Issues
	}
	return nil
}
