package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinprep/exam-booking-backend/internal/models"
)

func setupMockRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewAuditRepository(sqlx.NewDb(db, "sqlmock"), logger), mock
}

func TestLogEvent(t *testing.T) {
	repo, mock := setupMockRepo(t)

	mock.ExpectExec("INSERT INTO booking_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	bookingID := "b-1"
	err := repo.LogEvent(context.Background(), &models.BookingEvent{
		BookingID: &bookingID,
		StudentID: "STU1001",
		Action:    models.EventReserve,
		Success:   true,
		Details:   map[string]interface{}{"exam_session_id": "777"},
		IPAddress: "203.0.113.9",
		UserAgent: "test-agent",
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEvent_NilEvent(t *testing.T) {
	repo, _ := setupMockRepo(t)
	assert.Error(t, repo.LogEvent(context.Background(), nil))
}

func TestLogEvent_DatabaseFailureSurfaces(t *testing.T) {
	repo, mock := setupMockRepo(t)

	mock.ExpectExec("INSERT INTO booking_events").
		WillReturnError(errors.New("connection lost"))

	err := repo.LogEvent(context.Background(), &models.BookingEvent{
		StudentID: "STU1001",
		Action:    models.EventVerify,
	})

	assert.Error(t, err)
}

func TestLogCompensation(t *testing.T) {
	repo, mock := setupMockRepo(t)

	mock.ExpectExec("INSERT INTO compensation_reports").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.LogCompensation(context.Background(), &models.CompensationReport{
		ID:        uuid.New(),
		BookingID: "b-1",
		Cause:     "credit write failed",
		Actions: []models.CompensationAction{
			{Step: models.CompletedStep{Kind: models.StepCreateBooking, BookingID: "b-1"}},
		},
		CreatedAt: time.Now(),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogReconciliation(t *testing.T) {
	repo, mock := setupMockRepo(t)

	mock.ExpectExec("INSERT INTO reconciliation_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.LogReconciliation(context.Background(), &models.ReconciliationRun{
		ID:              uuid.New(),
		SessionsChecked: 40,
		SessionsDrifted: 2,
		SessionsFixed:   2,
		StartedAt:       time.Now().Add(-time.Minute),
		FinishedAt:      time.Now(),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnresolvedCompensations(t *testing.T) {
	repo, mock := setupMockRepo(t)

	reportID := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "booking_id", "cause", "actions", "failed_steps", "created_at"}).
		AddRow(reportID, "b-1", "credit write failed", []byte(`[]`), 1, time.Now())

	mock.ExpectQuery("SELECT id, booking_id, cause, actions, failed_steps, created_at").
		WithArgs(100).
		WillReturnRows(rows)

	reports, err := repo.GetUnresolvedCompensations(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, reportID, reports[0].ID)
	assert.Equal(t, 1, reports[0].FailedSteps)
}

func TestMarkCompensationResolved_NotFound(t *testing.T) {
	repo, mock := setupMockRepo(t)

	mock.ExpectExec("UPDATE compensation_reports SET resolved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkCompensationResolved(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
