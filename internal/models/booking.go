package models

import (
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "scheduled"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusNoShow    BookingStatus = "no_show"
)

// CreditType identifies which credit bucket a booking consumed
type CreditType string

const (
	CreditTypeSpecific CreditType = "specific"
	CreditTypeShared   CreditType = "shared"
)

// Booking represents one student's reservation for one exam session
type Booking struct {
	BookingID          string        `json:"booking_id"`
	StudentID          string        `json:"student_id"`
	Email              string        `json:"email"`
	ExamSessionID      string        `json:"exam_session_id"`
	ExamType           ExamType      `json:"exam_type"`
	CreditTypeConsumed CreditType    `json:"credit_type_consumed"`
	Status             BookingStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
}

// IsActive reports whether the booking still holds a seat. Exactly one
// active booking may exist per (student, session) pair.
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusScheduled
}

// CanBeCancelled checks if the booking can be cancelled
func (b *Booking) CanBeCancelled() bool {
	return b.Status == BookingStatusScheduled
}

// Cancel transitions the booking to cancelled. Bookings are never
// hard-deleted; cancellation is a status transition so audit history
// survives.
func (b *Booking) Cancel(reason *string, now time.Time) {
	b.Status = BookingStatusCancelled
	b.CancelledAt = &now
	b.CancellationReason = reason
}

// CreateBookingRequest is the payload for the reserve path
type CreateBookingRequest struct {
	StudentID     string `json:"student_id" binding:"required"`
	Email         string `json:"email" binding:"required"`
	ExamSessionID string `json:"exam_session_id" binding:"required"`
	ExamType      string `json:"exam_type" binding:"required"`
}

// CancelBookingRequest is the payload for the cancel path
type CancelBookingRequest struct {
	StudentID          string  `json:"student_id" binding:"required"`
	Email              string  `json:"email" binding:"required"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
}

// VerifyEligibilityRequest is the payload for the verification step
type VerifyEligibilityRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Email     string `json:"email" binding:"required"`
	ExamType  string `json:"exam_type" binding:"required"`
}

// ListBookingsFilter restricts which bookings a listing returns
type ListBookingsFilter string

const (
	ListFilterAll       ListBookingsFilter = "all"
	ListFilterUpcoming  ListBookingsFilter = "upcoming"
	ListFilterPast      ListBookingsFilter = "past"
	ListFilterCancelled ListBookingsFilter = "cancelled"
)

// ParseListBookingsFilter parses a listing filter, defaulting to all
func ParseListBookingsFilter(value string) ListBookingsFilter {
	switch ListBookingsFilter(value) {
	case ListFilterUpcoming, ListFilterPast, ListFilterCancelled:
		return ListBookingsFilter(value)
	default:
		return ListFilterAll
	}
}

// BookingWithSession pairs a booking with its hydrated session for listings
type BookingWithSession struct {
	Booking Booking      `json:"booking"`
	Session *ExamSession `json:"session,omitempty"`
}

// CancellationResult reports the outcome of a cancel operation
type CancellationResult struct {
	BookingID       string     `json:"booking_id"`
	Status          string     `json:"status"`
	CreditRestored  CreditType `json:"credit_restored"`
	NewBalance      int        `json:"new_balance"`
	Degraded        bool       `json:"degraded,omitempty"`
	DegradedMessage string     `json:"degraded_message,omitempty"`
}
