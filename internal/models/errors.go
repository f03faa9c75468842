package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the booking lifecycle. Handlers map these to HTTP
// statuses and user-facing messages; services wrap them with %w so callers
// can test with errors.Is.
var (
	// ErrNotFound indicates an object or association is absent in the remote store
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the requester does not own the booking
	ErrForbidden = errors.New("requester does not own this booking")

	// ErrDuplicateBooking indicates an active booking already exists for the
	// (student, session) pair
	ErrDuplicateBooking = errors.New("an active booking already exists for this session")

	// ErrSessionFull indicates the session has no remaining capacity
	ErrSessionFull = errors.New("this session is full")

	// ErrInsufficientCredits indicates no usable credit bucket has balance
	ErrInsufficientCredits = errors.New("0 credits available for this exam type")

	// ErrAlreadyCancelled indicates the booking was cancelled previously
	ErrAlreadyCancelled = errors.New("booking is already cancelled")

	// ErrExamInPast indicates the session date has elapsed; past bookings
	// are not cancellable
	ErrExamInPast = errors.New("this exam session is in the past")

	// ErrUpstreamUnavailable indicates a total remote failure (every chunk
	// of a batch call failed, or the store was unreachable)
	ErrUpstreamUnavailable = errors.New("remote store unavailable")
)

// ValidationError is a bad-input error raised before any remote call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PartialFailureError signals that a compensation sequence could not fully
// undo a partially-applied write sequence. It always carries the report so
// the residual inconsistency is visible, never masked as success.
type PartialFailureError struct {
	Report *CompensationReport
}

func (e *PartialFailureError) Error() string {
	if e.Report == nil {
		return "compensation left remote state partially inconsistent"
	}
	return fmt.Sprintf("compensation left %d step(s) inconsistent (report %s)",
		e.Report.FailedCount(), e.Report.ID)
}

// AsPartialFailure extracts a PartialFailureError from an error chain
func AsPartialFailure(err error) (*PartialFailureError, bool) {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
