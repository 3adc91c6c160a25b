package handler_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"docai/internal/domain"
	"docai/internal/extractor"
	"docai/internal/handler"
)

func TestMapDomainError_DistinctStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: unknown parser_type \"x\"", domain.ErrInvalidConfig), http.StatusBadRequest, "INVALID_CONFIG"},
		{fmt.Errorf("%w: 30 bytes", domain.ErrFileTooLarge), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{domain.ErrRecordNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrUniquenessViolation, http.StatusConflict, "DUPLICATE_RECORD"},
		{&domain.RecordRejectedError{Op: "insert", Err: errors.New("22021")}, http.StatusUnprocessableEntity, "RECORD_REJECTED"},
		{&domain.StoreUnavailableError{Op: "insert", Err: errors.New("down")}, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{extractor.NewRateLimitError("groq", errors.New("slow down"), 5), http.StatusTooManyRequests, "RATE_LIMITED"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code, msg := handler.MapDomainError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestMapDomainError_UnsupportedFormatCarriesDetail(t *testing.T) {
	err := &domain.UnsupportedFormatError{Filename: "scan.png", Expected: ".pdf", Actual: ".png"}

	status, _, msg := handler.MapDomainError(err)

	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Contains(t, msg, "expected .pdf, uploaded .png")
}

func TestMapDomainError_InternalMessageHidden(t *testing.T) {
	_, code, msg := handler.MapDomainError(errors.New("pq: password authentication failed"))

	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.NotContains(t, msg, "password")
}
