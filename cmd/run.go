package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/huangsam/backfill/core"
	"github.com/huangsam/backfill/core/dates"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/gcs"
	"github.com/huangsam/backfill/internal/outwriter"
	"github.com/huangsam/backfill/internal/source"
	"github.com/huangsam/backfill/internal/transform"
	"github.com/huangsam/backfill/internal/warehouse"
	"github.com/huangsam/backfill/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// progressInterval is how often a running backfill logs its progress.
const progressInterval = 30 * time.Second

// ErrFailedDates is returned by run when some dates failed and need a rerun.
var ErrFailedDates = errors.New("backfill finished with failed dates")

// runCmd executes a backfill.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load POS exports for a date range into the warehouse",
	Long: `Process every requested business date: probe the export, load real data
or a closure placeholder, validate the load and record the outcome.

Dates are processed in batches. Within a batch up to --max-workers dates run
concurrently; batches run one after another.

Without a date selection the default historical range is used and dates
already present in the warehouse are skipped. Explicit --dates are always
reprocessed.

Examples:
  # Backfill one week from a local export tree
  backfill run --source-dir ./exports --start-date 20240601 --end-date 20240607

  # Reload two specific days
  backfill run --source-dir ./exports --dates 20240601,20240615

  # See what the full historical backfill would do
  backfill run --source gcs --source-bucket pos-exports --all --dry-run

  # Write the summary next to the exports
  backfill run --source gcs --source-bucket pos-exports --all --log-file gs://pos-exports/runs/latest.json`,
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, closeDeps, err := newOrchestrator(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeDeps()

		ow, closeReport, err := reportWriter(cmd)
		if err != nil {
			return err
		}
		defer closeReport()
		req := requestFromConfig(cfg)

		if cfg.DryRun {
			planned, err := orch.Plan(ctx, req)
			if err != nil {
				return err
			}
			return writeReport(ow, planned, func(p []schema.ProcessingDate) error { return ow.WritePlan(p, cfg.Run) })
		}

		done := make(chan struct{})
		go reportProgress(orch, outwriter.NewOutWriter(cmd.ErrOrStderr()), done)
		summary, err := orch.RunBackfill(ctx, req)
		close(done)
		if err != nil {
			return err
		}

		// The summary is written even after an interrupt.
		if err := orch.PersistSummary(context.WithoutCancel(ctx), summary, cfg.SummaryFile); err != nil {
			logger.Error().Err(err).Str("path", cfg.SummaryFile).Msg("Failed to persist run summary")
		}
		if err := writeReport(ow, summary, ow.WriteSummary); err != nil {
			return err
		}
		if summary.FailedDates > 0 {
			return fmt.Errorf("%w: %d", ErrFailedDates, summary.FailedDates)
		}
		return nil
	},
}

// writeReport renders data as JSON when --output json is set, otherwise with text.
func writeReport[T any](ow *outwriter.OutWriter, data T, text func(T) error) error {
	if jsonOutput() {
		return ow.WriteJSON(data)
	}
	return text(data)
}

// reportWriter returns the writer for reports: --report-file when set, otherwise
// the command's stdout. Colors are disabled for files.
func reportWriter(cmd *cobra.Command) (*outwriter.OutWriter, func(), error) {
	path := viper.GetString("report-file")
	outwriter.ConfigureColor(cfg.UseColors && path == "")
	if path == "" {
		return outwriter.NewOutWriter(cmd.OutOrStdout()), func() {}, nil
	}
	f, err := contract.SelectOutputFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open report file: %w", err)
	}
	return outwriter.NewOutWriter(f), func() { _ = f.Close() }, nil
}

// jsonOutput reports whether --output json was requested.
func jsonOutput() bool {
	return strings.EqualFold(viper.GetString("output"), "json")
}

// requestFromConfig maps the validated date selection onto a resolver request.
// --all and an empty selection both resolve to the default range.
func requestFromConfig(c *contract.Config) dates.Request {
	return dates.Request{
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		ExplicitDates: c.Dates,
	}
}

// reportProgress writes a progress line every progressInterval until done is closed.
func reportProgress(orch *core.Orchestrator, ow *outwriter.OutWriter, done <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if p := orch.GetProgress(); p.Running {
				_ = ow.WriteProgress(p)
			}
		}
	}
}

// newOrchestrator wires the source, transformer and warehouse selected by c.
// The returned func releases any clients that were opened.
func newOrchestrator(ctx context.Context, c *contract.Config) (*core.Orchestrator, func(), error) {
	extractor, extractorCloser, err := source.New(ctx, c, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize source: %w", err)
	}
	closers := []func(){func() { _ = extractorCloser.Close() }}
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	store := warehouse.Manager.GetStore()
	if store == nil {
		closeAll()
		return nil, nil, errors.New("warehouse is not initialized")
	}

	deps := core.Deps{
		Extractor:   extractor,
		Transformer: transform.NewCSVTransformer(contract.Component(logger, "transform")),
		Loader:      store,
		Oracle:      store,
		Validator:   store,
		Tracker:     store,
		Logger:      logger,
	}

	if gcs.IsURI(c.SummaryFile) {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize object storage for summary: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		deps.Remote = client
	}

	return core.NewOrchestrator(deps, core.OptionsFromConfig(c)), closeAll, nil
}
