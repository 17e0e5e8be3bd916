package source

import (
	"context"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/stretchr/testify/mock"
)

// MockExtractor is a mock implementation of Extractor for testing.
type MockExtractor struct {
	mock.Mock
}

var _ contract.Extractor = &MockExtractor{} // Compile-time check

// Probe implements the Extractor interface.
func (m *MockExtractor) Probe(ctx context.Context, date schema.ProcessingDate) ([]schema.FileStat, error) {
	args := m.Called(ctx, date)
	stats, _ := args.Get(0).([]schema.FileStat)
	return stats, args.Error(1)
}

// Download implements the Extractor interface.
func (m *MockExtractor) Download(ctx context.Context, date schema.ProcessingDate, dir string) ([]schema.LocalFile, error) {
	args := m.Called(ctx, date, dir)
	files, _ := args.Get(0).([]schema.LocalFile)
	return files, args.Error(1)
}
