package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docai/internal/domain"
	"docai/internal/port"
)

// MockShippingRecordRepo is a mock implementation of port.ShippingRecordRepository.
type MockShippingRecordRepo struct {
	mock.Mock
}

func (m *MockShippingRecordRepo) FindByTaskID(ctx context.Context, taskID string) (*domain.ShippingRecord, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShippingRecord), args.Error(1)
}

func (m *MockShippingRecordRepo) Insert(ctx context.Context, record *domain.ShippingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockShippingRecordRepo) List(ctx context.Context, offset, limit int) ([]domain.ShippingRecord, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ShippingRecord), args.Int(1), args.Error(2)
}

func (m *MockShippingRecordRepo) ListAfter(ctx context.Context, after *port.RecordCursor, limit int) ([]domain.ShippingRecord, error) {
	args := m.Called(ctx, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ShippingRecord), args.Error(1)
}

func (m *MockShippingRecordRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
