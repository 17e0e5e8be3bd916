package calendar

import (
	"testing"

	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultThresholds = schema.ThresholdConfig{MinRecords: 10, MinFiles: 4, MinSales: decimal.NewFromInt(50)}

func analysis(files, records int, sales string, meaningful bool) schema.FileAnalysis {
	return schema.FileAnalysis{
		FilesFound:        files,
		TotalRecords:      records,
		TotalSales:        decimal.RequireFromString(sales),
		HasMeaningfulData: meaningful,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    schema.FileAnalysis
		expected schema.ClosureDecision
	}{
		{"no files", analysis(0, 0, "0", false), schema.ClosureDecision{IsClosure: true, Reason: schema.NoFilesReason}},
		{"no files wins over everything", analysis(0, 500, "10", true), schema.ClosureDecision{IsClosure: true, Reason: schema.NoFilesReason}},
		{"too few records", analysis(7, 3, "500", true), schema.ClosureDecision{IsClosure: true, Reason: schema.LowActivityReason}},
		{"too few files", analysis(2, 40, "500", true), schema.ClosureDecision{IsClosure: true, Reason: schema.LowActivityReason}},
		{"low records beats low sales", analysis(7, 5, "20", true), schema.ClosureDecision{IsClosure: true, Reason: schema.LowActivityReason}},
		{"small positive sales", analysis(7, 40, "12.34", true), schema.ClosureDecision{IsClosure: true, Reason: schema.NoSalesReason}},
		{"zero sales is not no_sales", analysis(7, 40, "0", true), schema.ClosureDecision{}},
		{"sales at threshold", analysis(7, 40, "50", true), schema.ClosureDecision{}},
		{"not meaningful", analysis(7, 40, "800", false), schema.ClosureDecision{IsClosure: true, Reason: schema.LowActivityReason}},
		{"active day", analysis(7, 1200, "4321.09", true), schema.ClosureDecision{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.input, defaultThresholds))
		})
	}
}

func TestAnalyze(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		a := Analyze(nil, defaultThresholds)
		assert.Equal(t, 0, a.FilesFound)
		assert.True(t, a.TotalSales.IsZero())
		assert.False(t, a.HasMeaningfulData)
	})

	t.Run("sums files", func(t *testing.T) {
		a := Analyze([]schema.FileStat{
			{Name: "CheckDetails.csv", Records: 1, Sales: decimal.RequireFromString("10.50")},
			{Name: "OrderDetails.csv", Records: 1, Sales: decimal.RequireFromString("4.25")},
		}, defaultThresholds)
		assert.Equal(t, 2, a.FilesFound)
		assert.Equal(t, 2, a.TotalRecords)
		assert.Equal(t, "14.75", a.TotalSales.StringFixed(2))
		assert.False(t, a.HasMeaningfulData)
		assert.Len(t, a.Files, 2)
	})

	t.Run("one file with rows is meaningful", func(t *testing.T) {
		a := Analyze([]schema.FileStat{{Name: "CheckDetails.csv", Records: 2}}, defaultThresholds)
		assert.True(t, a.HasMeaningfulData)
	})

	t.Run("totals reaching thresholds are meaningful", func(t *testing.T) {
		stats := make([]schema.FileStat, 0, 10)
		for _, name := range []string{"a.csv", "b.csv", "c.csv", "d.csv", "e.csv", "f.csv", "g.csv", "h.csv", "i.csv", "j.csv"} {
			stats = append(stats, schema.FileStat{Name: name, Records: 1})
		}
		a := Analyze(stats, defaultThresholds)
		assert.True(t, a.HasMeaningfulData)
	})
}

func TestSynthesize(t *testing.T) {
	date := schema.ProcessingDate("20241225")
	set := Synthesize(date, schema.NoFilesReason)

	require.Len(t, set, len(schema.Tables))
	for _, name := range schema.TableNames() {
		payload, ok := set[name]
		require.True(t, ok, "missing table %s", name)
		require.Len(t, payload.Rows, 1, name)
		assert.Equal(t, date, payload.Date)
		assert.Equal(t, name, payload.Table)

		row := payload.Rows[0]
		assert.Equal(t, true, row[schema.ClosureIndicatorColumn])
		assert.Equal(t, "no_files", row[schema.ClosureReasonColumn])
		assert.Equal(t, "2024-12-25", row[schema.ProcessingDateColumn])
		assert.Len(t, payload.Columns, len(row))
	}

	items := set["all_items_report"].Rows[0]
	assert.Equal(t, "CLOSURE_RECORD", items["master_id"])
	assert.Equal(t, "Business Closed - Business closed - no data files found", items["menu_item"])
	assert.Equal(t, 0, items["item_qty"])
	assert.Equal(t, 0.0, items["net_amount"])

	checks := set["check_details"].Rows[0]
	assert.Equal(t, "2024-12-25", checks["opened_date"])
	assert.Equal(t, 0.0, checks["total"])
}

func TestSynthesizeDoesNotShareRows(t *testing.T) {
	a := Synthesize("20241225", schema.NoSalesReason)
	b := Synthesize("20241226", schema.NoSalesReason)
	a["order_details"].Rows[0]["location"] = "mutated"
	assert.Equal(t, "Business Closed", b["order_details"].Rows[0]["location"])
	assert.Equal(t, "2024-12-26", b["order_details"].Rows[0]["opened"])
}

func TestCalendarEvaluate(t *testing.T) {
	c := New(defaultThresholds, zerolog.Nop())
	_, decision := c.Evaluate("20240404", nil)
	assert.Equal(t, schema.ClosureDecision{IsClosure: true, Reason: schema.NoFilesReason}, decision)
	assert.Equal(t, defaultThresholds, c.Thresholds())
}

func TestThresholdSummary(t *testing.T) {
	summary := New(defaultThresholds, zerolog.Nop()).ThresholdSummary()
	assert.Equal(t, "10", summary["min_records"])
	assert.Equal(t, "4", summary["min_files"])
	assert.Equal(t, "50.00", summary["min_sales"])
	assert.Equal(t, "Business closed - no sales activity", summary["reason_no_sales"])
}

func TestBusinessMetricsFilter(t *testing.T) {
	assert.Contains(t, BusinessMetricsFilter(), "closure_indicator")
}
