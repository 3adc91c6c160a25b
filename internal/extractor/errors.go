package extractor

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"docai/internal/domain"
)

// RateLimitError indicates a model backend returned HTTP 429 or the model is
// still inside a previous Retry-After window.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Backend    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Backend, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrRateLimited
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(backend string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Backend:    backend,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// ClassifyHTTPError converts an SDK error carrying an HTTP status into the
// extraction error taxonomy. A 429 becomes a RateLimitError, everything else
// an ExtractionBackendError.
func ClassifyHTTPError(backend string, status int, header http.Header, err error) error {
	if status == http.StatusTooManyRequests {
		retry := 0
		if header != nil {
			retry = ParseRetryAfterHeader(header.Get("Retry-After"))
		}
		return NewRateLimitError(backend, err, retry)
	}
	return &domain.ExtractionBackendError{Backend: backend, Err: err}
}

// BackendError wraps err as an ExtractionBackendError unless it already
// belongs to the extraction taxonomy.
func BackendError(backend string, err error) error {
	var rl *RateLimitError
	var be *domain.ExtractionBackendError
	if errors.As(err, &rl) || errors.As(err, &be) {
		return err
	}
	return &domain.ExtractionBackendError{Backend: backend, Err: err}
}
