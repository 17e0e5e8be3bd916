package warehouse

import (
	"context"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/stretchr/testify/mock"
)

// MockWarehouse is a mock implementation of Warehouse for testing.
type MockWarehouse struct {
	mock.Mock
}

var _ contract.Warehouse = &MockWarehouse{} // Compile-time check

// Load implements the Loader interface.
func (m *MockWarehouse) Load(ctx context.Context, table string, payload schema.TablePayload) (int, error) {
	args := m.Called(ctx, table, payload)
	return args.Int(0), args.Error(1)
}

// QueryProcessedDates implements the ProcessedDateOracle interface.
func (m *MockWarehouse) QueryProcessedDates(ctx context.Context) ([]schema.ProcessingDate, error) {
	args := m.Called(ctx)
	dates, _ := args.Get(0).([]schema.ProcessingDate)
	return dates, args.Error(1)
}

// Validate implements the Validator interface.
func (m *MockWarehouse) Validate(ctx context.Context, date schema.ProcessingDate, payloads []schema.TablePayload) (schema.ValidationResult, error) {
	args := m.Called(ctx, date, payloads)
	return args.Get(0).(schema.ValidationResult), args.Error(1)
}

// BeginRun implements the RunTracker interface.
func (m *MockWarehouse) BeginRun(ctx context.Context, run schema.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// RecordOutcome implements the RunTracker interface.
func (m *MockWarehouse) RecordOutcome(ctx context.Context, runID string, outcome schema.DateOutcome) error {
	args := m.Called(ctx, runID, outcome)
	return args.Error(0)
}

// EndRun implements the RunTracker interface.
func (m *MockWarehouse) EndRun(ctx context.Context, runID string, summary schema.RunSummary) error {
	args := m.Called(ctx, runID, summary)
	return args.Error(0)
}

// GetStatus implements the Warehouse interface.
func (m *MockWarehouse) GetStatus(ctx context.Context) (schema.WarehouseStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(schema.WarehouseStatus), args.Error(1)
}

// Close implements the Warehouse interface.
func (m *MockWarehouse) Close() error {
	args := m.Called()
	return args.Error(0)
}
