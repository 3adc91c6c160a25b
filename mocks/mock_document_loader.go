package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docai/internal/domain"
	"docai/internal/port"
)

// MockDocumentLoader is a mock implementation of port.DocumentLoader.
type MockDocumentLoader struct {
	mock.Mock
	VariantValue domain.ParserVariant
}

func (m *MockDocumentLoader) Variant() domain.ParserVariant {
	return m.VariantValue
}

func (m *MockDocumentLoader) ExtractText(ctx context.Context, input port.LoadInput) (*port.LoadOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.LoadOutput), args.Error(1)
}
