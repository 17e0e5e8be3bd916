package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/backfill/core/calendar"
	"github.com/huangsam/backfill/core/retry"
	"github.com/huangsam/backfill/internal/source"
	"github.com/huangsam/backfill/internal/transform"
	"github.com/huangsam/backfill/internal/warehouse"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testThresholds = schema.ThresholdConfig{MinRecords: 10, MinFiles: 4, MinSales: decimal.NewFromInt(50)}

// testPolicy retries quickly so that failure paths stay fast.
func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, ExponentialBase: 2}
}

// activeStats is a probe result for a normal trading day.
func activeStats() []schema.FileStat {
	stats := make([]schema.FileStat, 0, len(schema.Tables))
	for _, spec := range schema.Tables {
		stats = append(stats, schema.FileStat{Name: spec.Name + ".csv", Records: 20, Sales: decimal.NewFromInt(100)})
	}
	return stats
}

type executorFixture struct {
	extractor   *source.MockExtractor
	transformer *transform.MockTransformer
	warehouse   *warehouse.MockWarehouse
	staging     string
}

func newExecutorFixture(t *testing.T) *executorFixture {
	return &executorFixture{
		extractor:   &source.MockExtractor{},
		transformer: &transform.MockTransformer{},
		warehouse:   &warehouse.MockWarehouse{},
		staging:     t.TempDir(),
	}
}

func (f *executorFixture) executor(validate bool) *Executor {
	probe, download, load := PoliciesFrom(testPolicy())
	return NewExecutor(ExecutorDeps{
		Extractor:   f.extractor,
		Transformer: f.transformer,
		Loader:      f.warehouse,
		Validator:   f.warehouse,
		Calendar:    calendar.New(testThresholds, zerolog.Nop()),
		Logger:      zerolog.Nop(),
	}, ExecutorOptions{
		RunID:          "run_test",
		StagingRoot:    f.staging,
		ValidateData:   validate,
		ProbePolicy:    probe,
		DownloadPolicy: download,
		LoadPolicy:     load,
	})
}

func payloadFor(table string, rows int) *schema.TablePayload {
	p := &schema.TablePayload{Table: table, Date: "20240404"}
	for range rows {
		p.Rows = append(p.Rows, schema.Row{"id": "x"})
	}
	return p
}

func TestProcessDateClosureWhenNoFiles(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20241225")
	f.extractor.On("Probe", mock.Anything, date).Return([]schema.FileStat{}, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	outcome := f.executor(true).ProcessDate(context.Background(), date)

	require.Equal(t, schema.ClosureProcessed{Reason: schema.NoFilesReason, RecordsLoaded: 7}, outcome.Result)
	assert.Equal(t, date, outcome.Date)
	f.warehouse.AssertNumberOfCalls(t, "Load", 7)
	for _, name := range schema.TableNames() {
		f.warehouse.AssertCalled(t, "Load", mock.Anything, name, mock.MatchedBy(func(p schema.TablePayload) bool {
			return p.Table == name && len(p.Rows) == 1 && p.Rows[0][schema.ClosureIndicatorColumn] == true
		}))
	}
	f.extractor.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)
	f.warehouse.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDateSuccess(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	files := []schema.LocalFile{{Name: "CheckDetails.csv"}, {Name: "OrderDetails.csv"}}

	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return(files, nil)
	f.transformer.On("Transform", mock.Anything, files[0], date).Return(payloadFor("check_details", 12), nil)
	f.transformer.On("Transform", mock.Anything, files[1], date).Return(payloadFor("order_details", 8), nil)
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(12, nil)
	f.warehouse.On("Load", mock.Anything, "order_details", mock.Anything).Return(8, nil)
	f.warehouse.On("Validate", mock.Anything, date, mock.Anything).Return(schema.ValidationResult{Success: true}, nil)

	outcome := f.executor(true).ProcessDate(context.Background(), date)

	assert.Equal(t, schema.Success{RecordsLoaded: 20, TablesLoaded: 2}, outcome.Result)
	assert.Empty(t, outcome.Warnings)
	assert.Positive(t, outcome.ExecutionTime)
	f.warehouse.AssertExpectations(t)
}

func TestProcessDateNoFiles(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return(nil, nil)

	outcome := f.executor(true).ProcessDate(context.Background(), date)
	assert.Equal(t, schema.NoFiles{}, outcome.Result)
	f.warehouse.AssertNotCalled(t, "Load", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDateNoData(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	files := []schema.LocalFile{{Name: "Broken.csv"}, {Name: "Empty.csv"}}
	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return(files, nil)
	f.transformer.On("Transform", mock.Anything, files[0], date).Return(nil, errors.New("bad header"))
	f.transformer.On("Transform", mock.Anything, files[1], date).Return(nil, nil)

	outcome := f.executor(true).ProcessDate(context.Background(), date)
	assert.Equal(t, schema.NoData{}, outcome.Result)
}

func TestProcessDateLoadRetriesThenSucceeds(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	files := []schema.LocalFile{{Name: "CheckDetails.csv"}}
	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return(files, nil)
	f.transformer.On("Transform", mock.Anything, files[0], date).Return(payloadFor("check_details", 5), nil)
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(0, errors.New("deadlock")).Twice()
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(5, nil).Once()

	outcome := f.executor(false).ProcessDate(context.Background(), date)

	assert.Equal(t, schema.Success{RecordsLoaded: 5, TablesLoaded: 1}, outcome.Result)
	f.warehouse.AssertNumberOfCalls(t, "Load", 3)
}

func TestProcessDateProbeExhaustsRetries(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	errNetwork := errors.New("sftp: connection lost")
	f.extractor.On("Probe", mock.Anything, date).Return(nil, errNetwork)

	outcome := f.executor(true).ProcessDate(context.Background(), date)

	failed, ok := outcome.Result.(schema.Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, errNetwork)
	f.extractor.AssertNumberOfCalls(t, "Probe", 3)
}

func TestProcessDateValidationWarnings(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	files := []schema.LocalFile{{Name: "CheckDetails.csv"}}
	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return(files, nil)
	f.transformer.On("Transform", mock.Anything, files[0], date).Return(payloadFor("check_details", 3), nil)
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(3, nil)
	f.warehouse.On("Validate", mock.Anything, date, mock.Anything).
		Return(schema.ValidationResult{Success: false, Issues: []string{"check_details: expected 3 rows, found 2"}}, nil)

	outcome := f.executor(true).ProcessDate(context.Background(), date)

	assert.Equal(t, schema.SuccessKind, outcome.Kind())
	assert.Equal(t, []string{"check_details: expected 3 rows, found 2"}, outcome.Warnings)
}

func TestProcessDateValidationErrorIsWarning(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	files := []schema.LocalFile{{Name: "CheckDetails.csv"}}
	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return(files, nil)
	f.transformer.On("Transform", mock.Anything, files[0], date).Return(payloadFor("check_details", 3), nil)
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(3, nil)
	f.warehouse.On("Validate", mock.Anything, date, mock.Anything).Return(schema.ValidationResult{}, errors.New("query timeout"))

	outcome := f.executor(true).ProcessDate(context.Background(), date)

	assert.Equal(t, schema.SuccessKind, outcome.Kind())
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "query timeout")
}

func TestProcessDateCleansStaging(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	exec := f.executor(false)
	dir := exec.StagingDir(date)
	assert.Equal(t, filepath.Join(f.staging, "run_test", "20240404"), dir)

	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, dir).
		Run(func(args mock.Arguments) {
			require.NoError(t, os.WriteFile(filepath.Join(args.String(2), "CheckDetails.csv"), []byte("check_id\n1\n"), 0o644))
		}).
		Return([]schema.LocalFile{{Name: "CheckDetails.csv", Path: filepath.Join(dir, "CheckDetails.csv")}}, nil)
	f.transformer.On("Transform", mock.Anything, mock.Anything, date).Return(payloadFor("check_details", 1), nil)
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(0, errors.New("disk full"))

	outcome := exec.ProcessDate(context.Background(), date)

	assert.Equal(t, schema.FailedKind, outcome.Kind())
	assert.NoDirExists(t, dir)
}

func TestProcessDateRecoversPanic(t *testing.T) {
	f := newExecutorFixture(t)
	date := schema.ProcessingDate("20240404")
	f.extractor.On("Probe", mock.Anything, date).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, date, mock.Anything).Return([]schema.LocalFile{{Name: "a.csv"}}, nil)
	f.transformer.On("Transform", mock.Anything, mock.Anything, date).Panic("nil map write")

	exec := f.executor(false)
	outcome := exec.ProcessDate(context.Background(), date)

	assert.Equal(t, schema.FailedKind, outcome.Kind())
	assert.Contains(t, outcome.Error(), "nil map write")
	assert.Equal(t, date, outcome.Date)
	assert.NoDirExists(t, exec.StagingDir(date))
}

func TestMergeByTable(t *testing.T) {
	a := payloadFor("check_details", 2)
	a.Columns = []string{"id", "total"}
	b := payloadFor("order_details", 1)
	c := payloadFor("check_details", 3)
	c.Columns = []string{"id", "tip"}

	merged := mergeByTable([]schema.TablePayload{*a, *b, *c})
	require.Len(t, merged, 2)
	assert.Equal(t, "check_details", merged[0].Table)
	assert.Len(t, merged[0].Rows, 5)
	assert.Equal(t, []string{"id", "total", "tip"}, merged[0].Columns)
	assert.Equal(t, "order_details", merged[1].Table)

	// inputs are left untouched
	assert.Len(t, a.Rows, 2)
	assert.Equal(t, []string{"id", "total"}, a.Columns)
}
