package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/database"
	"github.com/clinprep/exam-booking-backend/internal/services"
)

// CompensationLister reads unresolved compensation reports from the audit store
type CompensationLister interface {
	GetUnresolvedCompensations(ctx context.Context, limit int) ([]database.UnresolvedCompensation, error)
}

// OpsHandler exposes operator endpoints: inconsistency visibility and
// manual reconciliation. These sit behind operator network controls, not
// the portal session middleware.
type OpsHandler struct {
	reconcileSvc *services.ReconciliationService
	cronSvc      *services.CronService
	auditStore   CompensationLister
	logger       *logrus.Logger
}

// NewOpsHandler creates a new OpsHandler
func NewOpsHandler(
	reconcileSvc *services.ReconciliationService,
	cronSvc *services.CronService,
	auditStore CompensationLister,
	logger *logrus.Logger,
) *OpsHandler {
	return &OpsHandler{
		reconcileSvc: reconcileSvc,
		cronSvc:      cronSvc,
		auditStore:   auditStore,
		logger:       logger,
	}
}

// GetInconsistencies reports drifted session counters and unresolved
// compensation reports
// GET /ops/inconsistencies
func (h *OpsHandler) GetInconsistencies(c *gin.Context) {
	drift, checked, err := h.reconcileSvc.FindDrift(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to scan for counter drift")
		respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Could not scan the remote store")
		return
	}

	var unresolved []database.UnresolvedCompensation
	if h.auditStore != nil {
		unresolved, err = h.auditStore.GetUnresolvedCompensations(c.Request.Context(), 100)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read unresolved compensations")
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not read the audit store")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"sessions_checked":         checked,
			"drifted_sessions":         drift,
			"unresolved_compensations": unresolved,
		},
	})
}

// RunReconciliation triggers a reconciliation pass immediately
// POST /ops/reconcile
func (h *OpsHandler) RunReconciliation(c *gin.Context) {
	run, err := h.reconcileSvc.Run(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual reconciliation run failed")
		respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Reconciliation run failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    run,
	})
}

// GetJobStatus reports the background job schedule
// GET /ops/jobs
func (h *OpsHandler) GetJobStatus(c *gin.Context) {
	status := gin.H{"running": false}
	if h.cronSvc != nil {
		status = h.cronSvc.GetJobStatus()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}
