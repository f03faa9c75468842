package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/config"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	reconcileSvc  *ReconciliationService
	reconcileSpec string
	runTimeout    time.Duration
	logger        *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(reconcileSvc *ReconciliationService, cfg config.ReconcileConfig, logger *logrus.Logger) *CronService {
	// Cron with seconds precision, matching the configured specs
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:          c,
		reconcileSvc:  reconcileSvc,
		reconcileSpec: cfg.CronSpec,
		runTimeout:    cfg.RunTimeout,
		logger:        logger,
	}
}

// Start schedules all background jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	_, err := s.cron.AddFunc(s.reconcileSpec, s.reconcileJob)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation job: %w", err)
	}
	s.logger.WithField("spec", s.reconcileSpec).Info("Scheduled: session counter reconciliation")

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// reconcileJob runs one counter reconciliation pass
func (s *CronService) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	if _, err := s.reconcileSvc.Run(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Reconciliation run failed")
	}
}

// RunReconcileNow runs the reconciliation job immediately, outside the
// schedule. Used by the ops endpoint.
func (s *CronService) RunReconcileNow(ctx context.Context) error {
	_, err := s.reconcileSvc.Run(ctx)
	return err
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
