package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/backfill/internal/parquet"
)

// ExportParquet writes run history to <outputFile>.runs.parquet and <outputFile>.outcomes.parquet.
func ExportParquet(ctx context.Context, store *Store, outputFile string, out io.Writer) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	status, err := store.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get warehouse status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no backfill runs found to export")
	}
	_, _ = fmt.Fprintf(out, "Exporting run history from %s backend...\n", status.Backend)

	runs, err := store.GetAllRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	outcomes, err := store.GetAllOutcomes(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve outcomes: %w", err)
	}

	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d runs to: %s\n", len(runs), runsFile)

	outcomesFile := outputFile + ".outcomes.parquet"
	if err := parquet.WriteOutcomesParquet(parquet.ConvertOutcomeRecords(outcomes), outcomesFile); err != nil {
		return fmt.Errorf("failed to write outcomes: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d date outcomes to: %s\n", len(outcomes), outcomesFile)
	return nil
}
