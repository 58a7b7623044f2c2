// Package errs holds the error taxonomy shared by the reporting features.
// Controllers translate these into HTTP status codes in one place (api.RespondError).
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a resource does not exist or is not visible to the caller.
	ErrNotFound = errors.New("resource not found")
	// ErrAccessDenied is returned for non-owner mutations and organization mismatches.
	// It never carries detail about why the resource exists.
	ErrAccessDenied = errors.New("access denied")
	// ErrScheduleConflict marks a scheduled run skipped because another run holds the lease.
	ErrScheduleConflict = errors.New("schedule run already in progress")
)

// ValidationError points at one offending part of a report definition or request.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the full list of problems found in one pass.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a new error built from the given parts.
func (v *ValidationErrors) Add(field, code, format string, args ...any) {
	*v = append(*v, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when the list is empty so callers can write `return v.Err()`.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// AsValidation extracts ValidationErrors from an error chain.
func AsValidation(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// ErrorKind classifies why an execution failed.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAccess     ErrorKind = "access"
	KindQuery      ErrorKind = "query"
	KindRender     ErrorKind = "render"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

// ExecutionError is what callers see when a run fails. The underlying cause is
// logged by the engine and deliberately not exposed through Error().
type ExecutionError struct {
	ExecutionID string
	Kind        ErrorKind
	Message     string
	Retryable   bool
	cause       error
}

// NewExecutionError wraps cause with a caller-safe message.
func NewExecutionError(executionID string, kind ErrorKind, message string, retryable bool, cause error) *ExecutionError {
	return &ExecutionError{ExecutionID: executionID, Kind: kind, Message: message, Retryable: retryable, cause: cause}
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// Unwrap exposes the cause to errors.Is for internal checks such as context cancellation.
func (e *ExecutionError) Unwrap() error {
	return e.cause
}
