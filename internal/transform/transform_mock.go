package transform

import (
	"context"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/stretchr/testify/mock"
)

// MockTransformer is a mock implementation of Transformer for testing.
type MockTransformer struct {
	mock.Mock
}

var _ contract.Transformer = &MockTransformer{} // Compile-time check

// Transform implements the Transformer interface.
func (m *MockTransformer) Transform(ctx context.Context, file schema.LocalFile, date schema.ProcessingDate) (*schema.TablePayload, error) {
	args := m.Called(ctx, file, date)
	payload, _ := args.Get(0).(*schema.TablePayload)
	return payload, args.Error(1)
}
