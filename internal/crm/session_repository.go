package crm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/clinprep/exam-booking-backend/internal/models"
)

// sessionProperties are the exam session fields read on every lookup
var sessionProperties = []string{
	"exam_type", "session_date", "start_time", "end_time",
	"location", "capacity", "booked_count",
}

// SessionRepository reads and mutates exam session objects in the remote
// store. Sessions themselves are created out of band; this layer only reads
// them and maintains the booked_count counter.
type SessionRepository struct {
	client *Client
	batch  *BatchClient
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(client *Client, batch *BatchClient) *SessionRepository {
	return &SessionRepository{client: client, batch: batch}
}

// GetByID reads a session by its remote identity. Returns models.ErrNotFound
// when the object is absent.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.ExamSession, error) {
	objects, _, err := r.batch.ReadObjects(ctx, models.ObjectTypeExamSession, []string{sessionID}, sessionProperties)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
	}

	return sessionFromObject(objects[0]), nil
}

// GetByIDs reads many sessions, chunked under the provider limit
func (r *SessionRepository) GetByIDs(ctx context.Context, sessionIDs []string) ([]models.ExamSession, []ChunkFailure, error) {
	objects, failures, err := r.batch.ReadObjects(ctx, models.ObjectTypeExamSession, sessionIDs, sessionProperties)
	if err != nil {
		return nil, failures, err
	}

	sessions := make([]models.ExamSession, len(objects))
	for i, obj := range objects {
		sessions[i] = *sessionFromObject(obj)
	}
	return sessions, failures, nil
}

// ListUpcoming returns sessions dated between now and the horizon
func (r *SessionRepository) ListUpcoming(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]models.ExamSession, error) {
	results, err := r.client.SearchObjects(ctx, models.ObjectTypeExamSession, []Filter{
		{PropertyName: "session_date", Operator: "GTE", Value: now.UTC().Format(time.RFC3339)},
		{PropertyName: "session_date", Operator: "LTE", Value: now.Add(horizon).UTC().Format(time.RFC3339)},
	}, sessionProperties, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search upcoming sessions: %w", err)
	}

	sessions := make([]models.ExamSession, len(results))
	for i, obj := range results {
		sessions[i] = *sessionFromObject(obj)
	}
	return sessions, nil
}

// SetBookedCount writes the capacity counter for one session. The counter
// has no atomic increment in the remote store; callers read, adjust and
// write, and accept that the value is best-effort until reconciled.
func (r *SessionRepository) SetBookedCount(ctx context.Context, sessionID string, count int) error {
	if count < 0 {
		count = 0
	}

	_, failures, err := r.batch.UpdateObjects(ctx, models.ObjectTypeExamSession, []ObjectInput{
		{ID: sessionID, Properties: map[string]string{"booked_count": strconv.Itoa(count)}},
	})
	if err != nil {
		return fmt.Errorf("failed to update session counter: %w", err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to update session counter: %v", failures[0].Err)
	}
	return nil
}

// SetBookedCounts writes corrected counters for many sessions at once,
// chunked under the provider limit. Returns the chunk failure log so a
// reconciliation run can report how many corrections actually landed.
func (r *SessionRepository) SetBookedCounts(ctx context.Context, counts map[string]int) ([]ChunkFailure, error) {
	if len(counts) == 0 {
		return nil, nil
	}

	inputs := make([]ObjectInput, 0, len(counts))
	for sessionID, count := range counts {
		if count < 0 {
			count = 0
		}
		inputs = append(inputs, ObjectInput{
			ID:         sessionID,
			Properties: map[string]string{"booked_count": strconv.Itoa(count)},
		})
	}

	_, failures, err := r.batch.UpdateObjects(ctx, models.ObjectTypeExamSession, inputs)
	return failures, err
}

func sessionFromObject(obj Object) *models.ExamSession {
	props := obj.Properties

	session := &models.ExamSession{
		SessionID:   obj.ID.String(),
		ExamType:    models.ExamType(props["exam_type"]),
		StartTime:   props["start_time"],
		EndTime:     props["end_time"],
		Location:    props["location"],
		Capacity:    parseCount(props["capacity"]),
		BookedCount: parseCount(props["booked_count"]),
	}

	if t, err := time.Parse(time.RFC3339, props["session_date"]); err == nil {
		session.Date = t
	}

	return session
}
