package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/middleware"
	"github.com/clinprep/exam-booking-backend/internal/models"
	"github.com/clinprep/exam-booking-backend/internal/services"
	"github.com/clinprep/exam-booking-backend/pkg/jwt"
)

// BookingHandler handles the booking lifecycle endpoints
type BookingHandler struct {
	bookingService *services.BookingService
	jwtService     *jwt.Service
	auditStore     EventStore
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	bookingService *services.BookingService,
	jwtService *jwt.Service,
	auditStore EventStore,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		jwtService:     jwtService,
		auditStore:     auditStore,
		logger:         logger,
	}
}

// VerifyEligibility verifies a student's identity and credit eligibility
// and issues a portal session token.
// POST /api/v1/eligibility/verify
func (h *BookingHandler) VerifyEligibility(c *gin.Context) {
	var req models.VerifyEligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	result, err := h.bookingService.Verify(c.Request.Context(), req.StudentID, req.Email, req.ExamType)
	if err != nil {
		h.safeLogEvent(c, nil, req.StudentID, models.EventVerify, false, gin.H{"error": err.Error()})
		h.respondServiceError(c, err)
		return
	}

	token, err := h.jwtService.GenerateSessionToken(result.ContactID, result.StudentID, result.Email)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session token")
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again.")
		return
	}

	h.safeLogEvent(c, nil, result.StudentID, models.EventVerify, true, gin.H{
		"exam_type": req.ExamType,
		"eligible":  result.Eligibility.Eligible,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"eligibility":   result.Eligibility,
			"session_token": token,
		},
	})
}

// CreateBooking reserves a seat in an exam session
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	session, exists := middleware.GetSessionContext(c)
	if !exists {
		respondError(c, http.StatusUnauthorized, "MISSING_SESSION", "Session context not found")
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	booking, err := h.bookingService.Reserve(c.Request.Context(), session.ContactID, &req)
	if err != nil {
		h.safeLogEvent(c, nil, req.StudentID, models.EventReserve, false, gin.H{
			"exam_session_id": req.ExamSessionID,
			"error":           err.Error(),
		})
		h.respondServiceError(c, err)
		return
	}

	h.safeLogEvent(c, &booking.BookingID, booking.StudentID, models.EventReserve, true, gin.H{
		"exam_session_id": booking.ExamSessionID,
		"credit_type":     booking.CreditTypeConsumed,
	})

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    booking,
	})
}

// ListBookings returns the student's bookings with hydrated sessions
// GET /api/v1/bookings?filter=upcoming&page=1&limit=20
func (h *BookingHandler) ListBookings(c *gin.Context) {
	session, exists := middleware.GetSessionContext(c)
	if !exists {
		respondError(c, http.StatusUnauthorized, "MISSING_SESSION", "Session context not found")
		return
	}

	filter := models.ParseListBookingsFilter(c.Query("filter"))
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	bookings, total, err := h.bookingService.ListBookings(
		c.Request.Context(), session.ContactID, session.StudentID, session.Email, filter, page, limit)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"bookings": bookings,
			"total":    total,
			"page":     page,
			"limit":    limit,
			"filter":   filter,
		},
	})
}

// CancelBooking cancels a booking and restores its credit
// POST /api/v1/bookings/:booking_id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	session, exists := middleware.GetSessionContext(c)
	if !exists {
		respondError(c, http.StatusUnauthorized, "MISSING_SESSION", "Session context not found")
		return
	}

	bookingID := c.Param("booking_id")

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	result, err := h.bookingService.Cancel(c.Request.Context(), session.ContactID, bookingID, &req)
	if err != nil {
		h.safeLogEvent(c, &bookingID, req.StudentID, models.EventCancel, false, gin.H{"error": err.Error()})
		h.respondServiceError(c, err)
		return
	}

	h.safeLogEvent(c, &bookingID, req.StudentID, models.EventCancel, true, gin.H{
		"credit_restored": result.CreditRestored,
		"degraded":        result.Degraded,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// respondServiceError maps a service error to the response envelope. The
// message is user-facing; internal and upstream failures share one generic
// message so provider details never leak to the client.
func (h *BookingHandler) respondServiceError(c *gin.Context, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", ve.Error())
		return
	}

	if pf, ok := models.AsPartialFailure(err); ok {
		h.logger.WithField("report_id", pf.Report.ID).Error("Request left partial remote state")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PARTIAL_FAILURE",
				"message": "The operation could not be completed and some changes may need attention. Support has been notified.",
			},
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrForbidden):
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You do not have access to this booking")
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "The requested record was not found")
	case errors.Is(err, models.ErrDuplicateBooking):
		respondError(c, http.StatusConflict, "DUPLICATE_BOOKING", models.ErrDuplicateBooking.Error())
	case errors.Is(err, models.ErrSessionFull):
		respondError(c, http.StatusConflict, "SESSION_FULL", models.ErrSessionFull.Error())
	case errors.Is(err, models.ErrInsufficientCredits):
		respondError(c, http.StatusConflict, "INSUFFICIENT_CREDITS", models.ErrInsufficientCredits.Error())
	case errors.Is(err, models.ErrAlreadyCancelled):
		respondError(c, http.StatusConflict, "ALREADY_CANCELLED", models.ErrAlreadyCancelled.Error())
	case errors.Is(err, models.ErrExamInPast):
		respondError(c, http.StatusConflict, "EXAM_IN_PAST", models.ErrExamInPast.Error())
	case errors.Is(err, models.ErrUpstreamUnavailable):
		respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "The booking service is temporarily unavailable. Please try again shortly.")
	default:
		h.logger.WithError(err).Error("Unhandled service error")
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again.")
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func queryInt(c *gin.Context, key string, defaultValue int) int {
	value := c.Query(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
