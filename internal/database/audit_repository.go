package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/models"
)

// AuditRepository persists booking lifecycle events, compensation reports
// and reconciliation runs in the local database. The remote store holds
// the bookings themselves; this is the operator-facing trail of what the
// service did to them.
type AuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB, logger *logrus.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// LogEvent creates a new booking event entry
// This should NEVER fail silently - lifecycle events must be logged
func (r *AuditRepository) LogEvent(ctx context.Context, event *models.BookingEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}

	query := `
		INSERT INTO booking_events (
			id, booking_id, student_id, action, success,
			details, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.BookingID, event.StudentID, event.Action, event.Success,
		details, event.IPAddress, event.UserAgent, event.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action":     event.Action,
			"student_id": event.StudentID,
		}).Error("CRITICAL: Failed to log booking event - THIS SHOULD NEVER HAPPEN")
		return fmt.Errorf("failed to log booking event: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"action":     event.Action,
		"student_id": event.StudentID,
	}).Debug("Booking event logged")

	return nil
}

// LogCompensation persists a compensation report for operator attention.
// Reports with failed inverse actions are the ones operators must resolve
// by hand; losing one hides a real remote inconsistency.
func (r *AuditRepository) LogCompensation(ctx context.Context, report *models.CompensationReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	actions, err := json.Marshal(report.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal compensation actions: %w", err)
	}

	query := `
		INSERT INTO compensation_reports (
			id, booking_id, cause, actions, failed_steps, resolved, created_at
		) VALUES ($1, $2, $3, $4, $5, FALSE, $6)`

	_, err = r.db.ExecContext(ctx, query,
		report.ID, report.BookingID, report.Cause, actions,
		report.FailedCount(), report.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"report_id":  report.ID,
			"booking_id": report.BookingID,
		}).Error("CRITICAL: Failed to log compensation report - THIS SHOULD NEVER HAPPEN")
		return fmt.Errorf("failed to log compensation report: %w", err)
	}

	return nil
}

// LogReconciliation persists one reconciliation run record
func (r *AuditRepository) LogReconciliation(ctx context.Context, run *models.ReconciliationRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	query := `
		INSERT INTO reconciliation_runs (
			id, sessions_checked, sessions_drifted, sessions_fixed,
			started_at, finished_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.SessionsChecked, run.SessionsDrifted, run.SessionsFixed,
		run.StartedAt, run.FinishedAt, run.Error,
	)

	if err != nil {
		r.logger.WithError(err).WithField("run_id", run.ID).
			Error("Failed to log reconciliation run")
		return fmt.Errorf("failed to log reconciliation run: %w", err)
	}

	return nil
}

// UnresolvedCompensation is one compensation report awaiting operator action
type UnresolvedCompensation struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	BookingID   string          `db:"booking_id" json:"booking_id"`
	Cause       string          `db:"cause" json:"cause"`
	Actions     json.RawMessage `db:"actions" json:"actions"`
	FailedSteps int             `db:"failed_steps" json:"failed_steps"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// GetUnresolvedCompensations retrieves compensation reports that left
// remote state inconsistent and have not been marked resolved
func (r *AuditRepository) GetUnresolvedCompensations(ctx context.Context, limit int) ([]UnresolvedCompensation, error) {
	var reports []UnresolvedCompensation
	query := `
		SELECT id, booking_id, cause, actions, failed_steps, created_at
		FROM compensation_reports
		WHERE resolved = FALSE AND failed_steps > 0
		ORDER BY created_at DESC
		LIMIT $1`

	err := r.db.SelectContext(ctx, &reports, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unresolved compensations: %w", err)
	}

	return reports, nil
}

// MarkCompensationResolved flags a report as handled by an operator
func (r *AuditRepository) MarkCompensationResolved(ctx context.Context, reportID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE compensation_reports SET resolved = TRUE WHERE id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("failed to mark compensation resolved: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("compensation report %s: %w", reportID, models.ErrNotFound)
	}
	return nil
}

// GetEventsByBooking retrieves the event trail for one booking
func (r *AuditRepository) GetEventsByBooking(ctx context.Context, bookingID string) ([]models.BookingEvent, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, booking_id, student_id, action, success,
		       details, ip_address, user_agent, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking events: %w", err)
	}
	defer rows.Close()

	var events []models.BookingEvent
	for rows.Next() {
		var event models.BookingEvent
		var details []byte
		err := rows.Scan(&event.ID, &event.BookingID, &event.StudentID, &event.Action,
			&event.Success, &details, &event.IPAddress, &event.UserAgent, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking event: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &event.Details)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
