// Package outwriter renders run summaries, dry-run plans and warehouse reports.
package outwriter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/fatih/color"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"
)

// OutWriter writes human-readable reports to a single destination.
type OutWriter struct {
	out   io.Writer
	width int // Terminal width used to size the detail column; 0 means detect
}

// NewOutWriter creates a writer for out.
func NewOutWriter(out io.Writer) *OutWriter {
	return &OutWriter{out: out}
}

// WithWidth fixes the terminal width instead of detecting it.
func (ow *OutWriter) WithWidth(width int) *OutWriter {
	ow.width = width
	return ow
}

// ConfigureColor turns colored labels on only when requested and stdout is a terminal.
func ConfigureColor(useColors bool) {
	color.NoColor = !useColors || !term.IsTerminal(int(os.Stdout.Fd()))
}

// detailWidth returns the room left for the free-text column of the summary table.
func (ow *OutWriter) detailWidth() int {
	termWidth := ow.width
	if termWidth == 0 {
		detected, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detected <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detected
		}
	}

	// Date + Outcome + Records + Tables + Time with borders and padding
	available := termWidth - 75
	if available < 20 {
		return 20
	}
	if available > 80 {
		return 80
	}
	return available
}

// WriteJSON writes data as indented JSON.
func (ow *OutWriter) WriteJSON(data any) error {
	encoder := json.NewEncoder(ow.out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	return table
}

func render(table *tablewriter.Table, data [][]string) error {
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// WriteSummary prints one row per date followed by the run totals.
func (ow *OutWriter) WriteSummary(summary schema.RunSummary) error {
	table := newTable(ow.out, "Date", "Outcome", "Records", "Tables", "Time", "Detail")
	width := ow.detailWidth()

	data := make([][]string, 0, len(summary.Outcomes))
	for _, rec := range summary.Outcomes {
		data = append(data, []string{
			string(rec.Date),
			contract.GetColorLabel(rec.Outcome),
			strconv.Itoa(rec.RecordsLoaded),
			strconv.Itoa(rec.TablesLoaded),
			strconv.FormatInt(rec.ExecutionTimeMs, 10) + "ms",
			contract.TruncateText(outcomeDetail(rec), width),
		})
	}
	if err := render(table, data); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(ow.out, "Run %s: %d dates, %d processed, %d closures, %d failed, %d records\n",
		summary.RunID, summary.TotalDates, summary.ProcessedDates, summary.ClosureDates,
		summary.FailedDates, summary.TotalRecords); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ow.out, "Success rate %.1f%% in %s\n", summary.SuccessRate, summary.Duration); err != nil {
		return err
	}
	if len(summary.FailedDateList) > 0 {
		if _, err := contract.FailedColor.Fprintf(ow.out, "Failed dates: %v\n", summary.FailedDateList); err != nil {
			return err
		}
	}
	return nil
}

// outcomeDetail is the free-text column of a summary row.
func outcomeDetail(rec schema.OutcomeRecord) string {
	switch {
	case rec.Error != "":
		return rec.Error
	case rec.ClosureReason != "":
		return rec.ClosureReason.Label()
	case len(rec.Warnings) > 0:
		return fmt.Sprintf("%d validation warnings: %s", len(rec.Warnings), rec.Warnings[0])
	default:
		return ""
	}
}

// WritePlan prints the batches a run would execute without touching any data.
func (ow *OutWriter) WritePlan(dates []schema.ProcessingDate, run schema.RunConfig) error {
	if len(dates) == 0 {
		_, err := fmt.Fprintln(ow.out, "No dates to process.")
		return err
	}

	batchSize := max(run.BatchSize, 1)
	table := newTable(ow.out, "Batch", "First", "Last", "Dates")
	var data [][]string
	i := 0
	for chunk := range slices.Chunk(dates, batchSize) {
		i++
		data = append(data, []string{
			strconv.Itoa(i),
			string(chunk[0]),
			string(chunk[len(chunk)-1]),
			strconv.Itoa(len(chunk)),
		})
	}
	if err := render(table, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(ow.out, "Dry run: %d dates in %d batches with %d workers\n", len(dates), i, run.MaxWorkers)
	return err
}

// WriteStatus prints warehouse status information.
func (ow *OutWriter) WriteStatus(status schema.WarehouseStatus) error {
	if _, err := fmt.Fprintf(ow.out, "Warehouse Backend: %s\nConnected: %t\n", status.Backend, status.Connected); err != nil {
		return err
	}
	if !status.Connected {
		return nil
	}
	if _, err := fmt.Fprintf(ow.out, "Total Runs: %d\n", status.TotalRuns); err != nil {
		return err
	}
	if status.TotalRuns > 0 {
		if _, err := fmt.Fprintf(ow.out, "Last Run: %s at %s\n", status.LastRunID, status.LastRunTime.Format("2006-01-02 15:04:05")); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(ow.out, "Processed Dates: %d (%d closures)\n", status.ProcessedDates, status.ClosureDates); err != nil {
		return err
	}

	names := make([]string, 0, len(status.TableSizes))
	for name := range status.TableSizes {
		names = append(names, name)
	}
	slices.Sort(names)
	table := newTable(ow.out, "Table", "Rows")
	data := make([][]string, 0, len(names)+len(status.BusinessRows))
	for _, name := range names {
		data = append(data, []string{name, strconv.FormatInt(status.TableSizes[name], 10)})
	}
	for _, name := range schema.TableNames() {
		if n, ok := status.BusinessRows[name]; ok {
			data = append(data, []string{"  " + name, strconv.FormatInt(n, 10)})
		}
	}
	return render(table, data)
}

// WriteClosures prints the closure report.
func (ow *OutWriter) WriteClosures(report []schema.ClosureReportRow) error {
	if len(report) == 0 {
		_, err := fmt.Fprintln(ow.out, "No closure dates recorded.")
		return err
	}
	table := newTable(ow.out, "Date", "Reason", "Placeholder Rows")
	data := make([][]string, 0, len(report))
	for _, r := range report {
		data = append(data, []string{
			r.ProcessingDate,
			contract.ClosureColor.Sprint(schema.ClosureReason(r.ClosureReason).Label()),
			strconv.Itoa(r.ClosureRecords),
		})
	}
	if err := render(table, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(ow.out, "%d closure dates\n", len(report))
	return err
}

// WriteProgress prints a one-line progress snapshot.
func (ow *OutWriter) WriteProgress(p schema.ProgressSnapshot) error {
	if !p.Running && p.TotalDates == 0 {
		_, err := fmt.Fprintln(ow.out, "No backfill running.")
		return err
	}
	_, err := fmt.Fprintf(ow.out, "%s: %d/%d dates (%.1f%%), %d closures, %d failed, %d records\n",
		p.RunID, p.ProcessedDates+p.FailedDates, p.TotalDates, p.ProgressPercentage,
		p.ClosureDates, p.FailedDates, p.TotalRecords)
	return err
}
