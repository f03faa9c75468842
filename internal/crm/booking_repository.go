package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/clinprep/exam-booking-backend/internal/models"
)

// bookingProperties are the booking fields read on every lookup
var bookingProperties = []string{
	"student_id", "email", "exam_session_id", "exam_type",
	"credit_type_consumed", "booking_status",
	"created_at", "cancelled_at", "cancellation_reason",
}

// BookingRepository reads and mutates exam booking objects in the remote store
type BookingRepository struct {
	client *Client
	batch  *BatchClient
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(client *Client, batch *BatchClient) *BookingRepository {
	return &BookingRepository{client: client, batch: batch}
}

// Create writes a new booking object and returns its provider-assigned identity
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) (string, error) {
	props := map[string]string{
		"student_id":           booking.StudentID,
		"email":                booking.Email,
		"exam_session_id":      booking.ExamSessionID,
		"exam_type":            string(booking.ExamType),
		"credit_type_consumed": string(booking.CreditTypeConsumed),
		"booking_status":       string(booking.Status),
		"created_at":           booking.CreatedAt.UTC().Format(time.RFC3339),
	}

	created, err := r.client.CreateObjects(ctx, models.ObjectTypeBooking, []map[string]string{props})
	if err != nil {
		return "", fmt.Errorf("failed to create booking: %w", err)
	}
	if len(created) == 0 {
		return "", fmt.Errorf("booking create returned no object")
	}

	return created[0].ID.String(), nil
}

// GetByID reads a booking by its remote identity. Returns models.ErrNotFound
// when the object is absent.
func (r *BookingRepository) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	objects, _, err := r.batch.ReadObjects(ctx, models.ObjectTypeBooking, []string{bookingID}, bookingProperties)
	if err != nil {
		return nil, fmt.Errorf("failed to read booking: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrNotFound)
	}

	return bookingFromObject(objects[0]), nil
}

// GetByIDs reads many bookings, chunked under the provider limit. Partial
// results are returned with the chunk failure log; callers treat them as
// best-effort.
func (r *BookingRepository) GetByIDs(ctx context.Context, bookingIDs []string) ([]models.Booking, []ChunkFailure, error) {
	objects, failures, err := r.batch.ReadObjects(ctx, models.ObjectTypeBooking, bookingIDs, bookingProperties)
	if err != nil {
		return nil, failures, err
	}

	bookings := make([]models.Booking, len(objects))
	for i, obj := range objects {
		bookings[i] = *bookingFromObject(obj)
	}
	return bookings, failures, nil
}

// FindActive returns the active booking for a (student, session) pair, or
// models.ErrNotFound. At most one may exist at any time.
func (r *BookingRepository) FindActive(ctx context.Context, studentID, sessionID string) (*models.Booking, error) {
	results, err := r.client.SearchObjects(ctx, models.ObjectTypeBooking, []Filter{
		{PropertyName: "student_id", Operator: "EQ", Value: studentID},
		{PropertyName: "exam_session_id", Operator: "EQ", Value: sessionID},
		{PropertyName: "booking_status", Operator: "EQ", Value: string(models.BookingStatusScheduled)},
	}, bookingProperties, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to search active booking: %w", err)
	}
	if len(results) == 0 {
		return nil, models.ErrNotFound
	}

	return bookingFromObject(results[0]), nil
}

// RecordCreditType stamps which credit bucket the booking consumed. The
// recorded bucket, not a re-derivation, is what cancellation restores.
func (r *BookingRepository) RecordCreditType(ctx context.Context, bookingID string, creditType models.CreditType) error {
	return r.updateOne(ctx, bookingID, map[string]string{
		"credit_type_consumed": string(creditType),
	})
}

// CountActiveForSession returns how many scheduled bookings reference a
// session. Reconciliation compares this against the session's counter.
func (r *BookingRepository) CountActiveForSession(ctx context.Context, sessionID string) (int, error) {
	count, err := r.client.CountObjects(ctx, models.ObjectTypeBooking, []Filter{
		{PropertyName: "exam_session_id", Operator: "EQ", Value: sessionID},
		{PropertyName: "booking_status", Operator: "EQ", Value: string(models.BookingStatusScheduled)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return count, nil
}

// MarkCancelled writes the cancelled status transition
func (r *BookingRepository) MarkCancelled(ctx context.Context, bookingID string, reason *string, cancelledAt time.Time) error {
	props := map[string]string{
		"booking_status": string(models.BookingStatusCancelled),
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
	}
	if reason != nil {
		props["cancellation_reason"] = *reason
	}
	return r.updateOne(ctx, bookingID, props)
}

// MarkScheduled reverts a booking to scheduled. Used only by compensation
// when a cancel sequence failed after the status write.
func (r *BookingRepository) MarkScheduled(ctx context.Context, bookingID string) error {
	return r.updateOne(ctx, bookingID, map[string]string{
		"booking_status": string(models.BookingStatusScheduled),
		"cancelled_at":   "",
	})
}

// Archive removes a booking object from the remote store. Only compensation
// uses this, to undo a creation whose sequence failed partway; cancellation
// never archives.
func (r *BookingRepository) Archive(ctx context.Context, bookingID string) error {
	return r.client.ArchiveObjects(ctx, models.ObjectTypeBooking, []string{bookingID})
}

func (r *BookingRepository) updateOne(ctx context.Context, bookingID string, props map[string]string) error {
	_, failures, err := r.batch.UpdateObjects(ctx, models.ObjectTypeBooking, []ObjectInput{
		{ID: bookingID, Properties: props},
	})
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to update booking: %v", failures[0].Err)
	}
	return nil
}

func bookingFromObject(obj Object) *models.Booking {
	props := obj.Properties

	booking := &models.Booking{
		BookingID:          obj.ID.String(),
		StudentID:          props["student_id"],
		Email:              props["email"],
		ExamSessionID:      props["exam_session_id"],
		ExamType:           models.ExamType(props["exam_type"]),
		CreditTypeConsumed: models.CreditType(props["credit_type_consumed"]),
		Status:             models.BookingStatus(props["booking_status"]),
	}

	if t, err := time.Parse(time.RFC3339, props["created_at"]); err == nil {
		booking.CreatedAt = t
	}
	if props["cancelled_at"] != "" {
		if t, err := time.Parse(time.RFC3339, props["cancelled_at"]); err == nil {
			booking.CancelledAt = &t
		}
	}
	if reason := props["cancellation_reason"]; reason != "" {
		booking.CancellationReason = &reason
	}

	return booking
}
