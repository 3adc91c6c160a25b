package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docai/internal/domain"
	"docai/internal/extractor"
)

// MockExtractor is a mock implementation of extractor.Extractor.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, documentText string, model domain.ExtractorModel) (*extractor.Result, error) {
	args := m.Called(ctx, documentText, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extractor.Result), args.Error(1)
}

func (m *MockExtractor) Available(model domain.ExtractorModel) bool {
	args := m.Called(model)
	return args.Bool(0)
}
