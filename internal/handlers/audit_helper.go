package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/clinprep/exam-booking-backend/internal/models"
	"github.com/clinprep/exam-booking-backend/internal/utils"
)

// EventStore persists booking lifecycle events. May be nil in development,
// in which case events are dropped.
type EventStore interface {
	LogEvent(ctx context.Context, event *models.BookingEvent) error
}

// safeLogEvent writes an audit event without ever failing the request it
// describes. The audit repository already logs its own failures loudly.
func (h *BookingHandler) safeLogEvent(c *gin.Context, bookingID *string, studentID string, action models.BookingEventAction, success bool, details gin.H) {
	if h.auditStore == nil {
		return
	}

	device := utils.ParseUserAgent(c.Request.UserAgent())
	eventDetails := map[string]interface{}{
		"device_type": device.DeviceType,
		"os":          device.OS,
		"browser":     device.Browser,
	}
	for k, v := range details {
		eventDetails[k] = v
	}

	_ = h.auditStore.LogEvent(c.Request.Context(), &models.BookingEvent{
		BookingID: bookingID,
		StudentID: studentID,
		Action:    action,
		Success:   success,
		Details:   eventDetails,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}
