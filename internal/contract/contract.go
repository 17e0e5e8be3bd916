// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"

	"github.com/huangsam/backfill/schema"
)

// Extractor reads the daily export files for a date from the upstream drop.
type Extractor interface {
	// Probe returns per-file statistics for the date without staging anything locally.
	Probe(ctx context.Context, date schema.ProcessingDate) ([]schema.FileStat, error)

	// Download stages the date's files into dir and returns them.
	// An empty result means no files exist for the date.
	Download(ctx context.Context, date schema.ProcessingDate, dir string) ([]schema.LocalFile, error)
}

// Transformer turns a staged file into a typed table payload.
type Transformer interface {
	// Transform returns nil when the file carries no rows.
	Transform(ctx context.Context, file schema.LocalFile, date schema.ProcessingDate) (*schema.TablePayload, error)
}

// Loader writes payloads to the warehouse.
type Loader interface {
	// Load writes the payload to table and returns the number of rows written.
	Load(ctx context.Context, table string, payload schema.TablePayload) (int, error)
}

// ProcessedDateOracle is the warehouse's record of dates that already have data.
type ProcessedDateOracle interface {
	QueryProcessedDates(ctx context.Context) ([]schema.ProcessingDate, error)
}

// Validator checks loaded data after a date completes. Its findings are advisory.
type Validator interface {
	Validate(ctx context.Context, date schema.ProcessingDate, payloads []schema.TablePayload) (schema.ValidationResult, error)
}

// RunTracker records run metadata and per-date outcomes for monitoring.
type RunTracker interface {
	// BeginRun inserts the run with a running status.
	BeginRun(ctx context.Context, run schema.RunRecord) error

	// RecordOutcome stores the outcome of one date.
	RecordOutcome(ctx context.Context, runID string, outcome schema.DateOutcome) error

	// EndRun stores the final counters and status.
	EndRun(ctx context.Context, runID string, summary schema.RunSummary) error
}

// Warehouse is the full set of operations offered by a warehouse backend.
type Warehouse interface {
	Loader
	ProcessedDateOracle
	Validator
	RunTracker

	// GetStatus returns status information about the warehouse.
	GetStatus(ctx context.Context) (schema.WarehouseStatus, error)

	// Close closes the underlying connection.
	Close() error
}
