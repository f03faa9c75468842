package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/database"
	"github.com/clinprep/exam-booking-backend/internal/services"
)

// One-shot reconciliation run, for operator use and scheduled jobs outside
// the server process.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	var store services.ReconciliationStore
	if cfg.Database.URL != "" {
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to audit database: %v", err)
		}
		defer db.Close()
		store = database.NewAuditRepository(db, logger)
	} else {
		logger.Warn("DATABASE_URL not set, run will not be recorded")
	}

	crmClient := crm.NewClient(cfg.CRM, logger)
	batchClient := crm.NewBatchClient(crmClient, cfg.CRM, logger)
	bookingRepo := crm.NewBookingRepository(crmClient, batchClient)
	sessionRepo := crm.NewSessionRepository(crmClient, batchClient)

	reconcileService := services.NewReconciliationService(bookingRepo, sessionRepo, store, cfg.Reconcile, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Reconcile.RunTimeout)
	defer cancel()

	run, err := reconcileService.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Reconciliation run failed")
	}

	logger.WithFields(logrus.Fields{
		"checked": run.SessionsChecked,
		"drifted": run.SessionsDrifted,
		"fixed":   run.SessionsFixed,
	}).Info("Reconciliation run finished")
}
