package port

import (
	"context"
	"time"

	"docai/internal/domain"
)

// ShippingRecordRepository persists extraction results keyed by task id.
// Records are insert-only.
type ShippingRecordRepository interface {
	// FindByTaskID returns domain.ErrRecordNotFound when no record exists.
	FindByTaskID(ctx context.Context, taskID string) (*domain.ShippingRecord, error)
	// Insert returns domain.ErrUniquenessViolation when the task id is already stored.
	Insert(ctx context.Context, record *domain.ShippingRecord) error
	List(ctx context.Context, offset, limit int) ([]domain.ShippingRecord, int, error)
	// ListAfter returns up to limit records older than after, newest first.
	// A nil cursor starts from the newest record.
	ListAfter(ctx context.Context, after *RecordCursor, limit int) ([]domain.ShippingRecord, error)
	Ping(ctx context.Context) error
}

// RecordCursor marks a position in the newest-first record order.
type RecordCursor struct {
	CreatedAt time.Time
	TaskID    string
}

// CursorOf returns the position just after rec.
func CursorOf(rec *domain.ShippingRecord) *RecordCursor {
	return &RecordCursor{CreatedAt: rec.CreatedAt, TaskID: rec.TaskID}
}
