package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingEventAction enumerates auditable booking lifecycle actions
type BookingEventAction string

const (
	EventVerify    BookingEventAction = "verify_eligibility"
	EventReserve   BookingEventAction = "reserve"
	EventCancel    BookingEventAction = "cancel"
	EventReconcile BookingEventAction = "reconcile"
)

// BookingEvent is one audit record of a booking lifecycle action. Events
// are written to the local audit store and must never fail the request
// they describe.
type BookingEvent struct {
	ID        uuid.UUID              `db:"id"`
	BookingID *string                `db:"booking_id"`
	StudentID string                 `db:"student_id"`
	Action    BookingEventAction     `db:"action"`
	Success   bool                   `db:"success"`
	Details   map[string]interface{} `db:"-"`
	IPAddress string                 `db:"ip_address"`
	UserAgent string                 `db:"user_agent"`
	CreatedAt time.Time              `db:"created_at"`
}

// ReconciliationRun records one capacity reconciliation pass over upcoming
// sessions: how many were checked and how many counters had drifted.
type ReconciliationRun struct {
	ID              uuid.UUID `db:"id"`
	SessionsChecked int       `db:"sessions_checked"`
	SessionsDrifted int       `db:"sessions_drifted"`
	SessionsFixed   int       `db:"sessions_fixed"`
	StartedAt       time.Time `db:"started_at"`
	FinishedAt      time.Time `db:"finished_at"`
	Error           *string   `db:"error"`
}
