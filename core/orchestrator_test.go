package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/huangsam/backfill/core/dates"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/source"
	"github.com/huangsam/backfill/internal/transform"
	"github.com/huangsam/backfill/internal/warehouse"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	uri  string
	data []byte
	err  error
}

func (r *fakeRemote) WriteURI(_ context.Context, uri string, data []byte, _ string) error {
	r.uri, r.data = uri, data
	return r.err
}

type orchestratorFixture struct {
	extractor   *source.MockExtractor
	transformer *transform.MockTransformer
	warehouse   *warehouse.MockWarehouse
	remote      *fakeRemote
	staging     string
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	return &orchestratorFixture{
		extractor:   &source.MockExtractor{},
		transformer: &transform.MockTransformer{},
		warehouse:   &warehouse.MockWarehouse{},
		remote:      &fakeRemote{},
		staging:     t.TempDir(),
	}
}

func (f *orchestratorFixture) orchestrator(run schema.RunConfig) *Orchestrator {
	return NewOrchestrator(Deps{
		Extractor:   f.extractor,
		Transformer: f.transformer,
		Loader:      f.warehouse,
		Oracle:      f.warehouse,
		Validator:   f.warehouse,
		Tracker:     f.warehouse,
		Remote:      f.remote,
		Logger:      zerolog.Nop(),
	}, Options{
		Run:          run,
		Thresholds:   testThresholds,
		Retry:        testPolicy(),
		StagingDir:   f.staging,
		DefaultStart: "20240404",
		DefaultEnd:   "20240406",
		SourceType:   "manual",
	})
}

func (f *orchestratorFixture) expectTracking() {
	f.warehouse.On("BeginRun", mock.Anything, mock.AnythingOfType("schema.RunRecord")).Return(nil)
	f.warehouse.On("RecordOutcome", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.warehouse.On("EndRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

var defaultRun = schema.RunConfig{MaxWorkers: 3, BatchSize: 10, SkipExisting: true, ValidateData: true}

func TestRunBackfillRange(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.expectTracking()
	f.warehouse.On("QueryProcessedDates", mock.Anything).Return([]schema.ProcessingDate{}, nil)
	f.extractor.On("Probe", mock.Anything, mock.Anything).Return(activeStats(), nil)
	f.extractor.On("Download", mock.Anything, mock.Anything, mock.Anything).
		Return([]schema.LocalFile{{Name: "CheckDetails.csv"}}, nil)
	f.transformer.On("Transform", mock.Anything, mock.Anything, mock.Anything).Return(payloadFor("check_details", 4), nil)
	f.warehouse.On("Load", mock.Anything, "check_details", mock.Anything).Return(4, nil)
	f.warehouse.On("Validate", mock.Anything, mock.Anything, mock.Anything).Return(schema.ValidationResult{Success: true}, nil)

	o := f.orchestrator(defaultRun)
	summary, err := o.RunBackfill(context.Background(), dates.Request{StartDate: "20240404", EndDate: "20240406"})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^run_\d+_[0-9a-f]{8}$`), summary.RunID)
	assert.Equal(t, 3, summary.TotalDates)
	assert.Equal(t, 3, summary.ProcessedDates)
	assert.Equal(t, 12, summary.TotalRecords)
	assert.InDelta(t, 100.0, summary.SuccessRate, 0.001)
	assert.Empty(t, summary.FailedDateList)

	f.warehouse.AssertNumberOfCalls(t, "RecordOutcome", 3)
	f.warehouse.AssertCalled(t, "EndRun", mock.Anything, summary.RunID, summary)
	assert.NoDirExists(t, filepath.Join(f.staging, summary.RunID))

	progress := o.GetProgress()
	assert.False(t, progress.Running)
	assert.Equal(t, summary.RunID, progress.RunID)
	assert.InDelta(t, 100.0, progress.ProgressPercentage, 0.001)
}

func TestRunBackfillExplicitClosure(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.expectTracking()
	f.extractor.On("Probe", mock.Anything, schema.ProcessingDate("20241225")).Return(nil, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	summary, err := f.orchestrator(defaultRun).RunBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20241225"}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ClosureDates)
	assert.Equal(t, []schema.ProcessingDate{"20241225"}, summary.ClosureDateList)
	assert.Equal(t, 7, summary.TotalRecords)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, schema.NoFilesReason, summary.Outcomes[0].ClosureReason)
	f.warehouse.AssertNumberOfCalls(t, "Load", 7)
	f.warehouse.AssertNotCalled(t, "QueryProcessedDates", mock.Anything)
}

func TestRunBackfillSkipsProcessedDates(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.expectTracking()
	f.warehouse.On("QueryProcessedDates", mock.Anything).Return([]schema.ProcessingDate{"20240404", "20240406"}, nil)
	f.extractor.On("Probe", mock.Anything, schema.ProcessingDate("20240405")).Return(nil, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	summary, err := f.orchestrator(defaultRun).RunBackfill(context.Background(), dates.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalDates)
	f.extractor.AssertNumberOfCalls(t, "Probe", 1)
}

func TestRunBackfillConfigurationError(t *testing.T) {
	f := newOrchestratorFixture(t)
	o := f.orchestrator(defaultRun)

	_, err := o.RunBackfill(context.Background(), dates.Request{StartDate: "2024-04-04", EndDate: "20240406"})
	assert.True(t, contract.IsConfigurationError(err))

	_, err = f.orchestrator(schema.RunConfig{MaxWorkers: 0, BatchSize: 10}).RunBackfill(context.Background(), dates.Request{})
	assert.True(t, contract.IsConfigurationError(err))

	f.extractor.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	f.warehouse.AssertNotCalled(t, "BeginRun", mock.Anything, mock.Anything)
	assert.Equal(t, schema.ProgressSnapshot{}, o.GetProgress())
}

func TestRunBackfillOracleFailureProcessesAllDates(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.expectTracking()
	f.warehouse.On("QueryProcessedDates", mock.Anything).Return(nil, errors.New("connection refused"))
	f.extractor.On("Probe", mock.Anything, mock.Anything).Return(nil, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	summary, err := f.orchestrator(defaultRun).RunBackfill(context.Background(), dates.Request{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalDates)
	assert.Equal(t, 3, summary.ClosureDates)
	f.warehouse.AssertNumberOfCalls(t, "QueryProcessedDates", testPolicy().MaxAttempts)
}

func TestRunBackfillTrackerFailureIsNotFatal(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.warehouse.On("BeginRun", mock.Anything, mock.Anything).Return(errors.New("read-only"))
	f.warehouse.On("RecordOutcome", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("read-only"))
	f.warehouse.On("EndRun", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("read-only"))
	f.extractor.On("Probe", mock.Anything, mock.Anything).Return(nil, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	summary, err := f.orchestrator(defaultRun).RunBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20240101"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ClosureDates)
}

func TestRunBackfillRejectsConcurrentRun(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.expectTracking()
	release := make(chan struct{})
	f.extractor.On("Probe", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	o := f.orchestrator(defaultRun)
	done := make(chan error, 1)
	go func() {
		_, err := o.RunBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20240101"}})
		done <- err
	}()

	require.Eventually(t, func() bool { return o.GetProgress().Running }, time.Second, time.Millisecond)
	_, err := o.RunBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20240102"}})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	assert.NoError(t, <-done)
}

func TestStartBackfill(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.expectTracking()
	release := make(chan struct{})
	f.extractor.On("Probe", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil, nil)
	f.warehouse.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	o := f.orchestrator(defaultRun)

	_, err := o.StartBackfill(context.Background(), dates.Request{ExplicitDates: []string{"2024-01-01"}})
	assert.True(t, contract.IsConfigurationError(err))

	done, err := o.StartBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20240101"}})
	require.NoError(t, err)

	_, err = o.StartBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20240102"}})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	summary, ok := <-done
	require.True(t, ok)
	assert.Equal(t, 1, summary.ClosureDates)
	_, ok = <-done
	assert.False(t, ok)

	_, err = o.RunBackfill(context.Background(), dates.Request{ExplicitDates: []string{"20240103"}})
	assert.NoError(t, err)
}

func TestPlan(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.warehouse.On("QueryProcessedDates", mock.Anything).Return([]schema.ProcessingDate{"20240405"}, nil)

	o := f.orchestrator(defaultRun)
	planned, err := o.Plan(context.Background(), dates.Request{})
	require.NoError(t, err)
	assert.Equal(t, []schema.ProcessingDate{"20240404", "20240406"}, planned)

	explicit, err := o.Plan(context.Background(), dates.Request{ExplicitDates: []string{"20240405"}})
	require.NoError(t, err)
	assert.Equal(t, []schema.ProcessingDate{"20240405"}, explicit)
}

func sampleSummary() schema.RunSummary {
	start := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	return schema.RunSummary{
		RunID:           "run_1749542400_deadbeef",
		TotalDates:      2,
		ProcessedDates:  1,
		FailedDates:     1,
		TotalRecords:    42,
		Duration:        "1m30s",
		DurationSeconds: 90,
		SuccessRate:     50,
		FailedDateList:  []schema.ProcessingDate{"20240405"},
		ClosureDateList: []schema.ProcessingDate{},
		StartTime:       start,
		EndTime:         start.Add(90 * time.Second),
		Outcomes: []schema.OutcomeRecord{
			{Date: "20240404", Outcome: schema.SuccessKind, RecordsLoaded: 42, TablesLoaded: 7},
			{Date: "20240405", Outcome: schema.FailedKind, Error: "timeout"},
		},
	}
}

func TestPersistSummaryLocal(t *testing.T) {
	f := newOrchestratorFixture(t)
	path := filepath.Join(t.TempDir(), "logs", "backfill_log.json")

	require.NoError(t, f.orchestrator(defaultRun).PersistSummary(context.Background(), sampleSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{
		"run_id", "total_dates", "processed_dates", "closure_dates", "failed_dates", "total_records",
		"duration", "duration_seconds", "success_rate", "failed_date_list", "closure_date_list",
		"start_time", "end_time", "outcomes",
	} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, []any{"20240405"}, decoded["failed_date_list"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed into place")
}

func TestPersistSummaryGCS(t *testing.T) {
	f := newOrchestratorFixture(t)
	o := f.orchestrator(defaultRun)

	require.NoError(t, o.PersistSummary(context.Background(), sampleSummary(), "gs://pos-audit/backfill/run.json"))
	assert.Equal(t, "gs://pos-audit/backfill/run.json", f.remote.uri)
	assert.Contains(t, string(f.remote.data), `"run_id": "run_1749542400_deadbeef"`)

	f.remote.err = errors.New("permission denied")
	assert.ErrorContains(t, o.PersistSummary(context.Background(), sampleSummary(), "gs://pos-audit/x.json"), "permission denied")

	noRemote := NewOrchestrator(Deps{Logger: zerolog.Nop()}, Options{})
	assert.Error(t, noRemote.PersistSummary(context.Background(), sampleSummary(), "gs://pos-audit/x.json"))
}

func TestNewRunID(t *testing.T) {
	now := time.Unix(1712188800, 0)
	a, b := NewRunID(now), NewRunID(now)
	assert.Regexp(t, `^run_1712188800_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
