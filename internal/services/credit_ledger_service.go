package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// Contact property holding the shared credit pool
const sharedCreditsProperty = "shared_credits"

// CreditLedgerService computes eligibility and executes credit balance
// mutations against contact properties in the remote store. Balances are
// decremented atomically-by-convention: this service is the only writer
// (besides compensation) and always re-reads before mutating.
type CreditLedgerService struct {
	contactRepo *crm.ContactRepository
	logger      *logrus.Logger
}

// NewCreditLedgerService creates a new credit ledger service
func NewCreditLedgerService(contactRepo *crm.ContactRepository, logger *logrus.Logger) *CreditLedgerService {
	return &CreditLedgerService{
		contactRepo: contactRepo,
		logger:      logger,
	}
}

// GetBalance returns a student's current credit balance
func (s *CreditLedgerService) GetBalance(ctx context.Context, studentID string) (*models.CreditBalance, error) {
	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	balance := contact.Balance
	return &balance, nil
}

// CheckEligibility decides whether a student may book a session of the
// given exam type. Eligible iff availableFor(examType) > 0; mini mocks
// never draw from the shared pool.
func (s *CreditLedgerService) CheckEligibility(ctx context.Context, studentID string, examType models.ExamType) (*models.EligibilityResult, error) {
	balance, err := s.GetBalance(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return buildEligibility(balance, examType), nil
}

// Consume decrements one credit for the exam type, preferring the specific
// bucket and falling back to the shared pool when the exam type permits.
// Eligibility is re-verified here against a fresh balance read: balances
// can change between an earlier CheckEligibility call and this submission.
func (s *CreditLedgerService) Consume(ctx context.Context, studentID string, examType models.ExamType) (*models.ConsumeResult, error) {
	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	balance := contact.Balance

	var creditType models.CreditType
	switch {
	case balance.SpecificCredits[examType] > 0:
		creditType = models.CreditTypeSpecific
	case examType.AllowsSharedCredits() && balance.SharedCredits > 0:
		creditType = models.CreditTypeShared
	default:
		return nil, fmt.Errorf("student %s, exam type %s: %w", studentID, examType, models.ErrInsufficientCredits)
	}

	if err := s.applyDelta(ctx, contact, examType, creditType, -1); err != nil {
		return nil, err
	}

	newBalance := balance.Clone()
	if creditType == models.CreditTypeSpecific {
		newBalance.SpecificCredits[examType]--
	} else {
		newBalance.SharedCredits--
	}

	s.logger.WithFields(logrus.Fields{
		"student_id":  studentID,
		"exam_type":   examType,
		"credit_type": creditType,
	}).Info("Credit consumed")

	return &models.ConsumeResult{
		CreditTypeConsumed: creditType,
		NewBalance:         newBalance,
	}, nil
}

// Restore increments the exact bucket a booking originally consumed. The
// bucket is the one recorded on the booking, never re-derived, so the
// restoration stays exact even if the student's specific/shared mix changed
// in the meantime.
func (s *CreditLedgerService) Restore(ctx context.Context, studentID string, creditType models.CreditType, examType models.ExamType) (*models.CreditBalance, error) {
	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if err := s.applyDelta(ctx, contact, examType, creditType, +1); err != nil {
		return nil, err
	}

	newBalance := contact.Balance.Clone()
	if creditType == models.CreditTypeSpecific {
		newBalance.SpecificCredits[examType]++
	} else {
		newBalance.SharedCredits++
	}

	s.logger.WithFields(logrus.Fields{
		"student_id":  studentID,
		"exam_type":   examType,
		"credit_type": creditType,
	}).Info("Credit restored")

	return newBalance, nil
}

// ConsumeExact decrements a specific bucket without the preference order.
// Used only by compensation to invert a Restore.
func (s *CreditLedgerService) ConsumeExact(ctx context.Context, studentID string, creditType models.CreditType, examType models.ExamType) error {
	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return err
	}

	return s.applyDelta(ctx, contact, examType, creditType, -1)
}

// applyDelta writes one bucket's new value back to the contact
func (s *CreditLedgerService) applyDelta(ctx context.Context, contact *crm.Contact, examType models.ExamType, creditType models.CreditType, delta int) error {
	var property string
	var current int

	if creditType == models.CreditTypeSpecific {
		property = examType.CreditProperty()
		current = contact.Balance.SpecificCredits[examType]
	} else {
		property = sharedCreditsProperty
		current = contact.Balance.SharedCredits
	}

	next := current + delta
	if next < 0 {
		return fmt.Errorf("student %s, bucket %s: %w", contact.StudentID, property, models.ErrInsufficientCredits)
	}

	return s.contactRepo.UpdateCreditProperty(ctx, contact.ID, property, next)
}

// buildEligibility assembles the eligibility verdict for a balance
func buildEligibility(balance *models.CreditBalance, examType models.ExamType) *models.EligibilityResult {
	available := balance.AvailableFor(examType)

	result := &models.EligibilityResult{
		Eligible:         available > 0,
		ExamType:         examType,
		AvailableCredits: available,
		Breakdown: models.EligibilityBreakdown{
			SpecificCredits: balance.SpecificCredits[examType],
			SharedCredits:   balance.SharedCredits,
			SharedUsable:    examType.AllowsSharedCredits(),
		},
	}

	if !result.Eligible {
		result.Message = "0 credits available for this exam type"
	}

	return result
}
