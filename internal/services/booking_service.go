package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/models"
	"github.com/clinprep/exam-booking-backend/pkg/validator"
)

// VerificationResult is the outcome of the verify step. ContactID is the
// remote contact identity in canonical string form; the handler embeds it
// in the portal session token.
type VerificationResult struct {
	Eligibility *models.EligibilityResult
	ContactID   string
	StudentID   string
	Email       string
}

// BookingService is the booking-lifecycle orchestrator. Every mutating
// operation is an explicit ordered step sequence: each step's success is a
// precondition for the next, and completed steps are recorded so the
// compensation manager can unwind them when a later step fails. Capacity
// and eligibility are re-validated immediately before the step that
// depends on them, not only at the initial check.
type BookingService struct {
	contactRepo *crm.ContactRepository
	bookingRepo *crm.BookingRepository
	sessionRepo *crm.SessionRepository
	batch       *crm.BatchClient
	resolver    *AssociationResolver
	ledger      *CreditLedgerService
	compensator *CompensationManager
	logger      *logrus.Logger

	studentIDValidator *validator.StudentIDValidator
	emailValidator     *validator.EmailValidator

	// now is replaceable in tests
	now func() time.Time
}

// NewBookingService creates a new booking orchestrator
func NewBookingService(
	contactRepo *crm.ContactRepository,
	bookingRepo *crm.BookingRepository,
	sessionRepo *crm.SessionRepository,
	batch *crm.BatchClient,
	resolver *AssociationResolver,
	ledger *CreditLedgerService,
	compensator *CompensationManager,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		contactRepo:        contactRepo,
		bookingRepo:        bookingRepo,
		sessionRepo:        sessionRepo,
		batch:              batch,
		resolver:           resolver,
		ledger:             ledger,
		compensator:        compensator,
		logger:             logger,
		studentIDValidator: validator.NewStudentIDValidator(),
		emailValidator:     validator.NewEmailValidator(),
		now:                time.Now,
	}
}

// ============================================================================
// VERIFY
// ============================================================================

// Verify validates the student's identity inputs and checks credit
// eligibility for the requested exam type. Input validation happens before
// any remote call; a validation failure terminates with no remote I/O.
func (s *BookingService) Verify(ctx context.Context, studentID, email, examTypeValue string) (*VerificationResult, error) {
	studentID, email, examType, err := s.validateIdentity(studentID, email, examTypeValue)
	if err != nil {
		return nil, err
	}

	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	// The email on record must match; a student ID alone does not prove identity
	if s.emailValidator.Sanitize(contact.Email) != email {
		return nil, fmt.Errorf("email does not match student record: %w", models.ErrForbidden)
	}

	balance := contact.Balance
	eligibility := buildEligibility(&balance, examType)

	s.logger.WithFields(logrus.Fields{
		"student_id": studentID,
		"exam_type":  examType,
		"eligible":   eligibility.Eligible,
	}).Info("Eligibility verified")

	return &VerificationResult{
		Eligibility: eligibility,
		ContactID:   models.CanonicalID(contact.ID),
		StudentID:   studentID,
		Email:       email,
	}, nil
}

// ============================================================================
// RESERVE
// ============================================================================

// Reserve executes the reservation sequence: re-check eligibility, create
// the booking object, create its associations, consume a credit, increment
// the session counter. A failure after the booking object exists triggers
// compensation of every completed step.
func (s *BookingService) Reserve(ctx context.Context, claimedContactID string, req *models.CreateBookingRequest) (*models.Booking, error) {
	studentID, email, examType, err := s.validateIdentity(req.StudentID, req.Email, req.ExamType)
	if err != nil {
		return nil, err
	}
	if req.ExamSessionID == "" {
		return nil, models.NewValidationError("exam_session_id", "must not be empty")
	}

	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !models.FlexID(models.CanonicalID(contact.ID)).Equals(claimedContactID) {
		return nil, fmt.Errorf("session does not belong to this student: %w", models.ErrForbidden)
	}

	// Duplicate guard: exactly one active booking per (student, session)
	if existing, err := s.bookingRepo.FindActive(ctx, studentID, req.ExamSessionID); err == nil && existing != nil {
		return nil, fmt.Errorf("booking %s: %w", existing.BookingID, models.ErrDuplicateBooking)
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, req.ExamSessionID)
	if err != nil {
		return nil, err
	}
	if session.ExamType != examType {
		return nil, models.NewValidationError("exam_type", "does not match the selected session")
	}
	if session.IsPast(s.now()) {
		return nil, fmt.Errorf("session %s has elapsed: %w", session.SessionID, models.ErrExamInPast)
	}
	if session.IsFull() {
		return nil, fmt.Errorf("session %s: %w", session.SessionID, models.ErrSessionFull)
	}

	// Step 1: eligibility re-check at submission time, not trusted from verify
	eligibility, err := s.ledger.CheckEligibility(ctx, studentID, examType)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, fmt.Errorf("student %s, exam type %s: %w", studentID, examType, models.ErrInsufficientCredits)
	}

	booking := &models.Booking{
		StudentID:     studentID,
		Email:         email,
		ExamSessionID: req.ExamSessionID,
		ExamType:      examType,
		Status:        models.BookingStatusScheduled,
		CreatedAt:     s.now(),
	}

	var completed []models.CompletedStep

	// Step 2: create the booking object
	bookingID, err := s.bookingRepo.Create(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	booking.BookingID = bookingID
	completed = append(completed, models.CompletedStep{
		Kind:      models.StepCreateBooking,
		BookingID: bookingID,
		StudentID: studentID,
	})

	// Step 3: create booking->contact and booking->session associations.
	// Each edge is recorded as its own completed step the moment it exists,
	// so a failure between the two writes still covers the first edge.
	failures, err := s.batch.CreateAssociations(ctx, models.ObjectTypeBooking, models.ObjectTypeContact, []crm.AssociationPair{
		{FromID: bookingID, ToID: contact.ID, Type: models.RelationBookingToContact},
	})
	if err != nil || len(failures) > 0 {
		if err == nil {
			err = fmt.Errorf("association write failed: %v", failures[0].Err)
		}
		return nil, s.unwind(ctx, bookingID, completed, err)
	}
	completed = append(completed, models.CompletedStep{
		Kind:      models.StepCreateAssociations,
		BookingID: bookingID,
		ContactID: contact.ID,
	})

	failures, err = s.batch.CreateAssociations(ctx, models.ObjectTypeBooking, models.ObjectTypeExamSession, []crm.AssociationPair{
		{FromID: bookingID, ToID: session.SessionID, Type: models.RelationBookingToSession},
	})
	if err != nil || len(failures) > 0 {
		if err == nil {
			err = fmt.Errorf("association write failed: %v", failures[0].Err)
		}
		return nil, s.unwind(ctx, bookingID, completed, err)
	}
	completed = append(completed, models.CompletedStep{
		Kind:          models.StepCreateAssociations,
		BookingID:     bookingID,
		ExamSessionID: session.SessionID,
	})

	// Step 4: consume the credit (the ledger re-verifies the balance)
	consumed, err := s.ledger.Consume(ctx, studentID, examType)
	if err != nil {
		return nil, s.unwind(ctx, bookingID, completed, err)
	}
	booking.CreditTypeConsumed = consumed.CreditTypeConsumed
	completed = append(completed, models.CompletedStep{
		Kind:       models.StepConsumeCredit,
		BookingID:  bookingID,
		StudentID:  studentID,
		ExamType:   examType,
		CreditType: consumed.CreditTypeConsumed,
	})

	// Record the consumed bucket on the booking so restoration stays exact
	if err := s.bookingRepo.RecordCreditType(ctx, bookingID, consumed.CreditTypeConsumed); err != nil {
		return nil, s.unwind(ctx, bookingID, completed, err)
	}

	// Step 5: capacity re-check immediately before the increment; the
	// counter is a read-modify-write with no lock, so this narrows the
	// race window rather than eliminating it
	fresh, err := s.sessionRepo.GetByID(ctx, session.SessionID)
	if err != nil {
		return nil, s.unwind(ctx, bookingID, completed, err)
	}
	if fresh.IsFull() {
		return nil, s.unwind(ctx, bookingID, completed,
			fmt.Errorf("session %s: %w", session.SessionID, models.ErrSessionFull))
	}
	if err := s.sessionRepo.SetBookedCount(ctx, session.SessionID, fresh.BookedCount+1); err != nil {
		return nil, s.unwind(ctx, bookingID, completed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  bookingID,
		"student_id":  studentID,
		"session_id":  session.SessionID,
		"exam_type":   examType,
		"credit_type": booking.CreditTypeConsumed,
	}).Info("Booking reserved")

	return booking, nil
}

// ============================================================================
// CANCEL
// ============================================================================

// Cancel executes the cancellation sequence: verify ownership, mark the
// booking cancelled, restore the recorded credit, release the session
// slot. A failure after the status write triggers compensation so a
// cancelled booking is never left with its credit unrestored.
func (s *BookingService) Cancel(ctx context.Context, claimedContactID, bookingID string, req *models.CancelBookingRequest) (*models.CancellationResult, error) {
	studentID, email, err := s.validateRequester(req.StudentID, req.Email)
	if err != nil {
		return nil, err
	}
	if bookingID == "" {
		return nil, models.NewValidationError("booking_id", "must not be empty")
	}

	// Step 1: ownership. No association means "cannot verify", which denies.
	owned, err := s.resolver.VerifyOwnership(ctx, bookingID, claimedContactID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrForbidden)
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.StudentID != studentID || s.emailValidator.Sanitize(booking.Email) != email {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrForbidden)
	}

	// Step 2: status guard
	if booking.Status == models.BookingStatusCancelled {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrAlreadyCancelled)
	}
	if !booking.CanBeCancelled() {
		return nil, models.NewValidationError("status", fmt.Sprintf("booking in status %s cannot be cancelled", booking.Status))
	}

	// Step 3: past sessions are not cancellable
	session, err := s.resolver.ResolveSession(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if session.IsPast(s.now()) {
		return nil, fmt.Errorf("session %s: %w", session.SessionID, models.ErrExamInPast)
	}

	var completed []models.CompletedStep

	// Step 4: status transition (never a delete)
	cancelledAt := s.now()
	if err := s.bookingRepo.MarkCancelled(ctx, bookingID, req.CancellationReason, cancelledAt); err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	completed = append(completed, models.CompletedStep{
		Kind:      models.StepMarkCancelled,
		BookingID: bookingID,
		StudentID: studentID,
	})

	// Step 5: restore the recorded bucket
	newBalance, err := s.ledger.Restore(ctx, studentID, booking.CreditTypeConsumed, booking.ExamType)
	if err != nil {
		return nil, s.unwind(ctx, bookingID, completed, err)
	}
	completed = append(completed, models.CompletedStep{
		Kind:       models.StepRestoreCredit,
		BookingID:  bookingID,
		StudentID:  studentID,
		ExamType:   booking.ExamType,
		CreditType: booking.CreditTypeConsumed,
	})

	result := &models.CancellationResult{
		BookingID:      bookingID,
		Status:         string(models.BookingStatusCancelled),
		CreditRestored: booking.CreditTypeConsumed,
		NewBalance:     newBalance.AvailableFor(booking.ExamType),
	}

	// Step 6: release the slot. The cancellation itself already holds (the
	// credit is back and the booking is inactive), so a counter failure
	// degrades the result rather than unwinding steps 4-5.
	fresh, err := s.sessionRepo.GetByID(ctx, session.SessionID)
	if err == nil {
		err = s.sessionRepo.SetBookedCount(ctx, session.SessionID, fresh.BookedCount-1)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"session_id": session.SessionID,
		}).Warn("Failed to release session slot, counter will be reconciled")
		result.Degraded = true
		result.DegradedMessage = "booking cancelled and credit restored; session capacity will be corrected shortly"
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  bookingID,
		"student_id":  studentID,
		"credit_type": booking.CreditTypeConsumed,
		"degraded":    result.Degraded,
	}).Info("Booking cancelled")

	return result, nil
}

// ============================================================================
// LIST
// ============================================================================

// ListBookings returns a student's bookings with their sessions hydrated,
// filtered and paged. Reads are best-effort: partial chunk failures drop
// items rather than failing the listing.
func (s *BookingService) ListBookings(ctx context.Context, claimedContactID, studentID, email string, filter models.ListBookingsFilter, page, limit int) ([]models.BookingWithSession, int, error) {
	studentID, email, err := s.validateRequester(studentID, email)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	contact, err := s.contactRepo.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, 0, err
	}
	if !models.FlexID(models.CanonicalID(contact.ID)).Equals(claimedContactID) {
		return nil, 0, fmt.Errorf("session does not belong to this student: %w", models.ErrForbidden)
	}

	edges, _, err := s.batch.ReadAssociations(ctx, models.ObjectTypeContact, []string{contact.ID}, models.ObjectTypeBooking)
	if err != nil {
		return nil, 0, err
	}
	if len(edges) == 0 {
		return []models.BookingWithSession{}, 0, nil
	}

	bookingIDs := make([]string, len(edges))
	for i, edge := range edges {
		bookingIDs[i] = edge.ToID.String()
	}

	bookings, _, err := s.bookingRepo.GetByIDs(ctx, bookingIDs)
	if err != nil {
		return nil, 0, err
	}

	sessions, err := s.hydrateSessions(ctx, bookings)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	var matched []models.BookingWithSession
	for _, booking := range bookings {
		session := sessions[booking.ExamSessionID]
		if !matchesFilter(booking, session, filter, now) {
			continue
		}
		matched = append(matched, models.BookingWithSession{Booking: booking, Session: session})
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Booking.CreatedAt.After(matched[j].Booking.CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * limit
	if start >= total {
		return []models.BookingWithSession{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

// hydrateSessions batch-reads the distinct sessions behind a booking list
func (s *BookingService) hydrateSessions(ctx context.Context, bookings []models.Booking) (map[string]*models.ExamSession, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, b := range bookings {
		if b.ExamSessionID != "" && !seen[b.ExamSessionID] {
			seen[b.ExamSessionID] = true
			ids = append(ids, b.ExamSessionID)
		}
	}

	sessions, _, err := s.sessionRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.ExamSession, len(sessions))
	for i := range sessions {
		byID[sessions[i].SessionID] = &sessions[i]
	}
	return byID, nil
}

func matchesFilter(booking models.Booking, session *models.ExamSession, filter models.ListBookingsFilter, now time.Time) bool {
	switch filter {
	case models.ListFilterCancelled:
		return booking.Status == models.BookingStatusCancelled
	case models.ListFilterUpcoming:
		return booking.IsActive() && session != nil && !session.IsPast(now)
	case models.ListFilterPast:
		return session != nil && session.IsPast(now)
	default:
		return true
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// unwind hands the completed steps to the compensation manager and folds
// the outcome into the returned error: a clean unwind surfaces the original
// cause, a dirty one surfaces the PartialFailure with its report.
func (s *BookingService) unwind(ctx context.Context, bookingID string, completed []models.CompletedStep, cause error) error {
	report := s.compensator.Compensate(ctx, bookingID, completed, cause)
	if !report.Clean() {
		return &models.PartialFailureError{Report: report}
	}
	return cause
}

func (s *BookingService) validateIdentity(studentID, email, examTypeValue string) (string, string, models.ExamType, error) {
	studentID, err := s.studentIDValidator.Validate(studentID)
	if err != nil {
		return "", "", "", models.NewValidationError("student_id", err.Error())
	}

	email, err = s.emailValidator.Validate(email)
	if err != nil {
		return "", "", "", models.NewValidationError("email", err.Error())
	}

	examType, err := models.ParseExamType(examTypeValue)
	if err != nil {
		return "", "", "", models.NewValidationError("exam_type", err.Error())
	}

	return studentID, email, examType, nil
}

func (s *BookingService) validateRequester(studentID, email string) (string, string, error) {
	studentID, err := s.studentIDValidator.Validate(studentID)
	if err != nil {
		return "", "", models.NewValidationError("student_id", err.Error())
	}

	email, err = s.emailValidator.Validate(email)
	if err != nil {
		return "", "", models.NewValidationError("email", err.Error())
	}

	return studentID, email, nil
}
