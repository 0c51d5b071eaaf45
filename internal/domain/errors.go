package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleState is returned when the stored state no longer matches what
	// the caller last read. Callers should refetch before retrying.
	ErrStaleState = errors.New("stale state")
	ErrTransient  = errors.New("transient backing store failure")
)

// FieldError describes one violated constraint on an input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level violations. It matches ErrInvalidInput.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add appends a field violation.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns e when it holds at least one violation.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, format string, args ...any) *ValidationError {
	v := &ValidationError{}
	v.Add(field, format, args...)
	return v
}

// InvalidTransitionError reports a lifecycle action attempted from a state
// that does not allow it.
type InvalidTransitionError struct {
	OrderID   string   `json:"order_id"`
	Action    string   `json:"action"`
	Current   POStatus `json:"current"`
	Attempted POStatus `json:"attempted"`
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s purchase order %s: current status %s, attempted %s",
		e.Action, e.OrderID, e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrStaleState
}

// TransientError wraps a backing store failure that may succeed when retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

// Transient marks err as a retryable backing store failure.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}
