package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// ReconciliationStore persists reconciliation run records. May be nil in
// development, in which case runs are only logged.
type ReconciliationStore interface {
	LogReconciliation(ctx context.Context, run *models.ReconciliationRun) error
}

// SessionDrift is one session whose counter disagrees with its actual
// active booking count
type SessionDrift struct {
	SessionID    string `json:"session_id"`
	BookedCount  int    `json:"booked_count"`
	ActualActive int    `json:"actual_active"`
}

// ReconciliationService corrects drifted session counters. The booked
// count is maintained by unlocked read-modify-write during booking and
// cancellation, so concurrent traffic can leave it off by a few; each run
// recomputes the true count from active bookings and writes corrections.
type ReconciliationService struct {
	bookingRepo *crm.BookingRepository
	sessionRepo *crm.SessionRepository
	store       ReconciliationStore
	logger      *logrus.Logger

	horizon time.Duration
	batch   int
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	bookingRepo *crm.BookingRepository,
	sessionRepo *crm.SessionRepository,
	store ReconciliationStore,
	cfg config.ReconcileConfig,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		bookingRepo: bookingRepo,
		sessionRepo: sessionRepo,
		store:       store,
		logger:      logger,
		horizon:     time.Duration(cfg.HorizonDays) * 24 * time.Hour,
		batch:       cfg.SessionBatch,
	}
}

// FindDrift scans upcoming sessions and reports every counter that
// disagrees with the actual active booking count, without correcting
// anything. Sessions whose booking count cannot be read are skipped.
func (s *ReconciliationService) FindDrift(ctx context.Context) ([]SessionDrift, int, error) {
	sessions, err := s.sessionRepo.ListUpcoming(ctx, time.Now(), s.horizon, s.batch)
	if err != nil {
		return nil, 0, err
	}

	var drift []SessionDrift
	for _, session := range sessions {
		actual, err := s.bookingRepo.CountActiveForSession(ctx, session.SessionID)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", session.SessionID).
				Warn("Skipping session, could not count active bookings")
			continue
		}

		if actual != session.BookedCount {
			drift = append(drift, SessionDrift{
				SessionID:    session.SessionID,
				BookedCount:  session.BookedCount,
				ActualActive: actual,
			})
		}
	}

	return drift, len(sessions), nil
}

// Run executes one reconciliation pass: find drifted counters, write the
// corrected values in one chunked batch, record the run. Corrections are
// best-effort; a partially failed correction batch still fixes whatever
// chunks landed.
func (s *ReconciliationService) Run(ctx context.Context) (*models.ReconciliationRun, error) {
	run := &models.ReconciliationRun{
		ID:        uuid.New(),
		StartedAt: time.Now(),
	}

	drift, checked, err := s.FindDrift(ctx)
	if err != nil {
		msg := err.Error()
		run.Error = &msg
		run.FinishedAt = time.Now()
		s.persist(ctx, run)
		return run, err
	}

	run.SessionsChecked = checked
	run.SessionsDrifted = len(drift)

	if len(drift) > 0 {
		corrections := make(map[string]int, len(drift))
		for _, d := range drift {
			corrections[d.SessionID] = d.ActualActive
		}

		failures, err := s.sessionRepo.SetBookedCounts(ctx, corrections)
		if err != nil {
			msg := err.Error()
			run.Error = &msg
		}

		fixed := len(drift)
		for _, f := range failures {
			fixed -= f.Size
		}
		if fixed < 0 {
			fixed = 0
		}
		run.SessionsFixed = fixed
	}

	run.FinishedAt = time.Now()

	s.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"checked":  run.SessionsChecked,
		"drifted":  run.SessionsDrifted,
		"fixed":    run.SessionsFixed,
		"duration": run.FinishedAt.Sub(run.StartedAt).String(),
	}).Info("Reconciliation run completed")

	s.persist(ctx, run)
	return run, nil
}

func (s *ReconciliationService) persist(ctx context.Context, run *models.ReconciliationRun) {
	if s.store == nil {
		return
	}
	if err := s.store.LogReconciliation(ctx, run); err != nil {
		s.logger.WithError(err).WithField("run_id", run.ID).
			Error("CRITICAL: Failed to persist reconciliation run - THIS SHOULD NEVER HAPPEN")
	}
}
