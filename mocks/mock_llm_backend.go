package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docai/internal/port"
)

// MockLLMBackend is a mock implementation of port.LLMBackend.
type MockLLMBackend struct {
	mock.Mock
}

func (m *MockLLMBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLLMBackend) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.CompletionResponse), args.Error(1)
}
