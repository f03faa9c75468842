package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestBatchClient(t *testing.T, handler http.HandlerFunc) (*BatchClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.CRMConfig{
		BaseURL:               server.URL,
		AccessToken:           "test-token",
		Timeout:               5 * time.Second,
		ObjectBatchLimit:      100,
		AssociationBatchLimit: 1000,
		WriteBatchLimit:       100,
	}

	client := NewClient(cfg, testLogger())
	return NewBatchClient(client, cfg, testLogger()), server
}

// echoUpdateHandler answers batch update calls by echoing each input back
// as an object, and records how many requests arrived
func echoUpdateHandler(requests *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)

		var req batchUpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		results := make([]Object, len(req.Inputs))
		for i, input := range req.Inputs {
			results[i] = Object{ID: models.FlexID(input.ID), Properties: input.Properties}
		}
		_ = json.NewEncoder(w).Encode(batchObjectResponse{Status: "COMPLETE", Results: results})
	}
}

func TestBatchClient_UpdateObjects_SplitsAtLimit(t *testing.T) {
	var requests int32
	batch, _ := newTestBatchClient(t, echoUpdateHandler(&requests))

	inputs := make([]ObjectInput, 150)
	for i := range inputs {
		inputs[i] = ObjectInput{ID: fmt.Sprintf("obj-%03d", i), Properties: map[string]string{"k": "v"}}
	}

	results, failures, err := batch.UpdateObjects(context.Background(), "exam_sessions", inputs)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Len(t, results, 150)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	// Chunk order is preserved in the flattened result
	assert.Equal(t, "obj-000", results[0].ID.String())
	assert.Equal(t, "obj-149", results[149].ID.String())
}

func TestBatchClient_UpdateObjects_PartialChunkFailure(t *testing.T) {
	// The chunk containing the marker id fails; the other chunks land
	handler := func(w http.ResponseWriter, r *http.Request) {
		var req batchUpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		for _, input := range req.Inputs {
			if strings.HasPrefix(input.ID, "bad-") {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(apiError{Status: "error", Message: "backend exploded"})
				return
			}
		}

		results := make([]Object, len(req.Inputs))
		for i, input := range req.Inputs {
			results[i] = Object{ID: models.FlexID(input.ID)}
		}
		_ = json.NewEncoder(w).Encode(batchObjectResponse{Status: "COMPLETE", Results: results})
	}

	batch, _ := newTestBatchClient(t, handler)

	// 250 items: chunks of 100, 100, 50; the middle chunk carries the marker
	inputs := make([]ObjectInput, 250)
	for i := range inputs {
		prefix := "ok"
		if i >= 100 && i < 200 {
			prefix = "bad"
		}
		inputs[i] = ObjectInput{ID: fmt.Sprintf("%s-%03d", prefix, i)}
	}

	results, failures, err := batch.UpdateObjects(context.Background(), "exam_sessions", inputs)
	require.NoError(t, err)
	assert.Len(t, results, 150)
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)
	assert.Equal(t, 100, failures[0].Size)
}

func TestBatchClient_UpdateObjects_AllChunksFail(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	batch, _ := newTestBatchClient(t, handler)

	inputs := make([]ObjectInput, 150)
	for i := range inputs {
		inputs[i] = ObjectInput{ID: fmt.Sprintf("obj-%d", i)}
	}

	_, failures, err := batch.UpdateObjects(context.Background(), "exam_sessions", inputs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
	assert.Len(t, failures, 2)
}

func TestBatchClient_EmptyInputNoNetworkCall(t *testing.T) {
	var requests int32
	batch, _ := newTestBatchClient(t, echoUpdateHandler(&requests))

	results, failures, err := batch.ReadObjects(context.Background(), "contacts", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Nil(t, failures)

	_, failures, err = batch.UpdateObjects(context.Background(), "contacts", nil)
	require.NoError(t, err)
	assert.Nil(t, failures)

	createFailures, err := batch.CreateAssociations(context.Background(), "exam_bookings", "contacts", nil)
	require.NoError(t, err)
	assert.Nil(t, createFailures)

	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
}

func TestBatchClient_ReadObjects_RateLimited(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	batch, _ := newTestBatchClient(t, handler)

	_, _, err := batch.ReadObjects(context.Background(), "contacts", []string{"1"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
}

func TestBatchClient_ReadAssociations_MixedIDTypes(t *testing.T) {
	// One endpoint version returns far-end ids as numbers, another as
	// strings; both must decode to the same canonical identity
	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "COMPLETE",
			"results": [
				{"from": {"id": "b-1"}, "to": [{"id": 12345, "type": "booking_to_contact"}]},
				{"from": {"id": "b-2"}, "to": [{"id": "12345", "type": "booking_to_contact"}]}
			]
		}`))
	}
	batch, _ := newTestBatchClient(t, handler)

	edges, failures, err := batch.ReadAssociations(context.Background(), "exam_bookings", []string{"b-1", "b-2"}, "contacts")
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, edges, 2)
	assert.Equal(t, edges[0].ToID, edges[1].ToID)
	assert.True(t, edges[0].ToID.Equals("12345"))
}

func TestBatchClient_ArchiveAssociations_AnyChunkFailureIsError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	batch, _ := newTestBatchClient(t, handler)

	err := batch.ArchiveAssociations(context.Background(), "exam_bookings", "contacts", []AssociationPair{
		{FromID: "b-1", ToID: "c-1", Type: "booking_to_contact"},
	})
	assert.Error(t, err)
}
