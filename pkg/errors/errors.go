package errors

import (
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur on a single upstream call
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeClientError ErrorType = "client_error"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// APIError describes the failure of one HTTP attempt against the upstream service
type APIError struct {
	Type    ErrorType
	Message string
	Code    int
	// RetryAfter is the server supplied wait hint, zero when absent
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// FilterConfigError reports an operator supplied filter pattern that could not be compiled.
// It is logged and the pattern is treated as never matching.
type FilterConfigError struct {
	Pattern string
	Err     error
}

func (e *FilterConfigError) Error() string {
	return fmt.Sprintf("invalid filter pattern %q: %v", e.Pattern, e.Err)
}

func (e *FilterConfigError) Unwrap() error { return e.Err }

// SourceUnavailable is returned when a page of identifiers could not be fetched
// after all retry attempts were spent
type SourceUnavailable struct {
	Cursor   string
	Attempts int
	Err      error
}

func (e *SourceUnavailable) Error() string {
	cursor := e.Cursor
	if cursor == "" {
		cursor = "<start>"
	}
	return fmt.Sprintf("source unavailable at cursor %s after %d attempts: %v", cursor, e.Attempts, e.Err)
}

func (e *SourceUnavailable) Unwrap() error { return e.Err }

// DetailUnavailable is returned when the detail payload of an identifier could not be fetched
type DetailUnavailable struct {
	Identifier string
	Attempts   int
	Err        error
}

func (e *DetailUnavailable) Error() string {
	return fmt.Sprintf("detail unavailable for %s after %d attempts: %v", e.Identifier, e.Attempts, e.Err)
}

func (e *DetailUnavailable) Unwrap() error { return e.Err }

// StorageError wraps a filesystem failure while checking or writing one artifact
type StorageError struct {
	Identifier string
	Op         string
	Path       string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s (%s): %v", e.Op, e.Identifier, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CursorIOError is fatal for a run: the cursor could not be read or persisted
type CursorIOError struct {
	Cursor string
	Op     string
	Err    error
}

func (e *CursorIOError) Error() string {
	return fmt.Sprintf("cursor %s failed (cursor=%q): %v", e.Op, e.Cursor, e.Err)
}

func (e *CursorIOError) Unwrap() error { return e.Err }
