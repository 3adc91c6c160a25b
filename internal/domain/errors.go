package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrCorruptDocument     = errors.New("document could not be read")
	ErrEmptyFile           = errors.New("uploaded file is empty")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrInvalidConfig       = errors.New("invalid processing configuration")
	ErrModelUnavailable    = errors.New("extractor model is not configured")
	ErrParserUnavailable   = errors.New("parser variant is not configured")
	ErrExtractionBackend   = errors.New("extraction backend failed")
	ErrExtractionParse     = errors.New("model output does not conform to schema")
	ErrRateLimited         = errors.New("extraction backend rate limited")
	ErrUniquenessViolation = errors.New("record already exists for this task id")
	ErrRecordNotFound      = errors.New("record not found")
	ErrStoreUnavailable    = errors.New("record store unavailable")
	ErrRecordRejected      = errors.New("record store rejected the record data")
)

// UnsupportedFormatError reports an upload whose extension is not accepted.
type UnsupportedFormatError struct {
	Filename string
	Expected string
	Actual   string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format uploaded: expected %s, uploaded %s (%s)", e.Expected, e.Actual, e.Filename)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ExtractionBackendError wraps a failure talking to a remote parsing or model service.
type ExtractionBackendError struct {
	Backend string
	Err     error
}

func (e *ExtractionBackendError) Error() string {
	return fmt.Sprintf("%s backend error: %v", e.Backend, e.Err)
}

func (e *ExtractionBackendError) Unwrap() error {
	return e.Err
}

func (e *ExtractionBackendError) Is(target error) bool {
	return target == ErrExtractionBackend
}

// ExtractionParseError reports model output that is not valid JSON or violates the schema.
type ExtractionParseError struct {
	Model  ExtractorModel
	Reason string
	Raw    string
}

func (e *ExtractionParseError) Error() string {
	return fmt.Sprintf("%s produced invalid output: %s", e.Model, e.Reason)
}

func (e *ExtractionParseError) Is(target error) bool {
	return target == ErrExtractionParse
}

// StoreUnavailableError wraps a record store failure other than a uniqueness conflict.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// RecordRejectedError reports a write the store refused because of the data
// itself. Retrying the same request fails the same way.
type RecordRejectedError struct {
	Op  string
	Err error
}

func (e *RecordRejectedError) Error() string {
	return fmt.Sprintf("store %s rejected record: %v", e.Op, e.Err)
}

func (e *RecordRejectedError) Unwrap() error {
	return e.Err
}

func (e *RecordRejectedError) Is(target error) bool {
	return target == ErrRecordRejected
}
