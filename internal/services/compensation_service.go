package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// CompensationStore persists compensation reports for operator attention.
// Implemented by the local audit database; may be nil in development, in
// which case reports are only logged.
type CompensationStore interface {
	LogCompensation(ctx context.Context, report *models.CompensationReport) error
}

// CompensationManager issues best-effort corrective writes when a
// multi-step sequence fails partway. The remote store has no multi-object
// transactions, so a failed sequence leaves real mutations behind; this
// walks the completed steps in reverse and applies each step's inverse.
// Inverse failures are recorded and surfaced, never masked as success:
// the design optimizes for visibility of residual inconsistency over
// false confidence.
type CompensationManager struct {
	bookingRepo *crm.BookingRepository
	sessionRepo *crm.SessionRepository
	ledger      *CreditLedgerService
	batch       *crm.BatchClient
	store       CompensationStore
	logger      *logrus.Logger
}

// NewCompensationManager creates a new compensation manager
func NewCompensationManager(
	bookingRepo *crm.BookingRepository,
	sessionRepo *crm.SessionRepository,
	ledger *CreditLedgerService,
	batch *crm.BatchClient,
	store CompensationStore,
	logger *logrus.Logger,
) *CompensationManager {
	return &CompensationManager{
		bookingRepo: bookingRepo,
		sessionRepo: sessionRepo,
		ledger:      ledger,
		batch:       batch,
		store:       store,
		logger:      logger,
	}
}

// Compensate walks completedSteps in reverse order and issues the inverse
// action for each. Every inverse is attempted regardless of earlier inverse
// failures. The returned report lists each attempt; a report with failures
// means remote state is left partially inconsistent and the caller must
// surface it as a PartialFailure.
func (m *CompensationManager) Compensate(ctx context.Context, bookingID string, completedSteps []models.CompletedStep, cause error) *models.CompensationReport {
	report := &models.CompensationReport{
		ID:        uuid.New(),
		BookingID: bookingID,
		Cause:     cause.Error(),
		CreatedAt: time.Now(),
	}

	for i := len(completedSteps) - 1; i >= 0; i-- {
		step := completedSteps[i]
		action := models.CompensationAction{Step: step}

		if err := m.invert(ctx, step); err != nil {
			action.Error = err.Error()
			m.logger.WithError(err).WithFields(logrus.Fields{
				"report_id":  report.ID,
				"booking_id": bookingID,
				"step_kind":  step.Kind,
			}).Error("Compensation inverse action failed - remote state left inconsistent")
		}

		report.Actions = append(report.Actions, action)
	}

	m.logger.WithFields(logrus.Fields{
		"report_id":    report.ID,
		"booking_id":   bookingID,
		"cause":        report.Cause,
		"steps":        len(report.Actions),
		"failed_steps": report.FailedCount(),
	}).Warn("Compensation completed")

	m.persist(ctx, report)

	return report
}

// invert applies the inverse action for one completed step
func (m *CompensationManager) invert(ctx context.Context, step models.CompletedStep) error {
	switch step.Kind {
	case models.StepCreateBooking:
		return m.bookingRepo.Archive(ctx, step.BookingID)

	case models.StepCreateAssociations:
		return m.archiveAssociations(ctx, step)

	case models.StepConsumeCredit:
		_, err := m.ledger.Restore(ctx, step.StudentID, step.CreditType, step.ExamType)
		return err

	case models.StepRestoreCredit:
		return m.ledger.ConsumeExact(ctx, step.StudentID, step.CreditType, step.ExamType)

	case models.StepIncrementCounter:
		return m.adjustCounter(ctx, step.ExamSessionID, -1)

	case models.StepDecrementCounter:
		return m.adjustCounter(ctx, step.ExamSessionID, +1)

	case models.StepMarkCancelled:
		return m.bookingRepo.MarkScheduled(ctx, step.BookingID)

	default:
		m.logger.WithField("step_kind", step.Kind).Error("Unknown step kind, no inverse applied")
		return nil
	}
}

func (m *CompensationManager) archiveAssociations(ctx context.Context, step models.CompletedStep) error {
	var firstErr error

	if step.ContactID != "" {
		err := m.batch.ArchiveAssociations(ctx, models.ObjectTypeBooking, models.ObjectTypeContact, []crm.AssociationPair{
			{FromID: step.BookingID, ToID: step.ContactID, Type: models.RelationBookingToContact},
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if step.ExamSessionID != "" {
		err := m.batch.ArchiveAssociations(ctx, models.ObjectTypeBooking, models.ObjectTypeExamSession, []crm.AssociationPair{
			{FromID: step.BookingID, ToID: step.ExamSessionID, Type: models.RelationBookingToSession},
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// adjustCounter re-applies a counter delta via read-modify-write
func (m *CompensationManager) adjustCounter(ctx context.Context, sessionID string, delta int) error {
	session, err := m.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.sessionRepo.SetBookedCount(ctx, sessionID, session.BookedCount+delta)
}

// persist writes the report to the audit store; persistence failures are
// logged loudly but do not change the report outcome
func (m *CompensationManager) persist(ctx context.Context, report *models.CompensationReport) {
	if m.store == nil {
		return
	}
	if err := m.store.LogCompensation(ctx, report); err != nil {
		m.logger.WithError(err).WithField("report_id", report.ID).
			Error("CRITICAL: Failed to persist compensation report - THIS SHOULD NEVER HAPPEN")
	}
}
