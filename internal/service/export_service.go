package service

import (
	"context"
	"fmt"
	"io"

	"docai/internal/export"
	"docai/internal/port"
)

const exportPageSize = 100

// ExportService streams every stored record into a spreadsheet.
type ExportService interface {
	Export(ctx context.Context, format string, w io.Writer) (int, error)
}

type exportService struct {
	repo port.ShippingRecordRepository
}

// NewExportService creates a new ExportService implementation.
func NewExportService(repo port.ShippingRecordRepository) ExportService {
	return &exportService{repo: repo}
}

// Export writes all records page by page and returns the number written.
func (s *exportService) Export(ctx context.Context, format string, w io.Writer) (int, error) {
	out, err := export.NewWriter(format, w)
	if err != nil {
		return 0, err
	}
	if err := out.WriteHeader(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("exportService.Export: %w", err)
	}

	written := 0
	var after *port.RecordCursor
	for {
		records, err := s.repo.ListAfter(ctx, after, exportPageSize)
		if err != nil {
			_ = out.Close()
			return written, err
		}
		if err := out.WriteRecords(records); err != nil {
			_ = out.Close()
			return written, fmt.Errorf("exportService.Export: %w", err)
		}
		written += len(records)
		if len(records) < exportPageSize {
			break
		}
		after = port.CursorOf(&records[len(records)-1])
	}

	if err := out.Close(); err != nil {
		return written, fmt.Errorf("exportService.Export: %w", err)
	}
	return written, nil
}
