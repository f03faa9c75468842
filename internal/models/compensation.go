package models

import (
	"time"

	"github.com/google/uuid"
)

// StepKind identifies one completed step of a multi-step write sequence.
// The remote store offers no multi-object transactions, so every mutating
// sequence records its completed steps and their inverses are applied in
// reverse order when a later step fails.
type StepKind string

const (
	StepCreateBooking      StepKind = "create_booking"
	StepCreateAssociations StepKind = "create_associations"
	StepConsumeCredit      StepKind = "consume_credit"
	StepRestoreCredit      StepKind = "restore_credit"

	// The counter write is the final step of both the reserve and the
	// cancel sequence, so no sequence currently records these two; their
	// inverses cover any sequence that gains a step after the counter.
	StepIncrementCounter StepKind = "increment_counter"
	StepDecrementCounter StepKind = "decrement_counter"
	StepMarkCancelled    StepKind = "mark_cancelled"
)

// CompletedStep is one applied remote mutation with everything its inverse needs
type CompletedStep struct {
	Kind          StepKind   `json:"kind"`
	BookingID     string     `json:"booking_id,omitempty"`
	ContactID     string     `json:"contact_id,omitempty"`
	ExamSessionID string     `json:"exam_session_id,omitempty"`
	StudentID     string     `json:"student_id,omitempty"`
	ExamType      ExamType   `json:"exam_type,omitempty"`
	CreditType    CreditType `json:"credit_type,omitempty"`
}

// CompensationAction records one inverse action attempt
type CompensationAction struct {
	Step  CompletedStep `json:"step"`
	Error string        `json:"error,omitempty"`
}

// CompensationReport is the outcome of walking a completed-step list in
// reverse and issuing best-effort inverse actions.
type CompensationReport struct {
	ID        uuid.UUID            `json:"id"`
	BookingID string               `json:"booking_id,omitempty"`
	Cause     string               `json:"cause"`
	Actions   []CompensationAction `json:"actions"`
	CreatedAt time.Time            `json:"created_at"`
}

// FailedCount returns how many inverse actions themselves failed
func (r *CompensationReport) FailedCount() int {
	failed := 0
	for _, a := range r.Actions {
		if a.Error != "" {
			failed++
		}
	}
	return failed
}

// Clean reports whether every inverse action succeeded
func (r *CompensationReport) Clean() bool {
	return r.FailedCount() == 0
}

// FailedSteps returns the steps left inconsistent in remote state
func (r *CompensationReport) FailedSteps() []CompletedStep {
	var steps []CompletedStep
	for _, a := range r.Actions {
		if a.Error != "" {
			steps = append(steps, a.Step)
		}
	}
	return steps
}
