package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/crm"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// fakeStore is an in-memory stand-in for the remote object store, speaking
// just enough of the provider's batch surface for the service tests.
// Associations are bidirectional, like the provider's.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string]map[string]map[string]string
	edges    []fakeEdge
	nextID   int
	requests []string

	// failWhen makes matching requests fail with a 500
	failWhen func(path string, body []byte) bool

	// numericAssociationIDs emits association far-end ids as JSON numbers
	// instead of strings when the id is all digits
	numericAssociationIDs bool
}

type fakeEdge struct {
	fromType, fromID, toType, toID, relation string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string]map[string]map[string]string),
		nextID:  9000,
	}
}

func (f *fakeStore) putObject(objectType, id string, props map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects[objectType] == nil {
		f.objects[objectType] = make(map[string]map[string]string)
	}
	copied := make(map[string]string, len(props))
	for k, v := range props {
		copied[k] = v
	}
	f.objects[objectType][id] = copied
}

func (f *fakeStore) getProp(objectType, id, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if props, ok := f.objects[objectType][id]; ok {
		return props[key]
	}
	return ""
}

func (f *fakeStore) hasObject(objectType, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[objectType][id]
	return ok
}

func (f *fakeStore) addEdge(fromType, fromID, toType, toID, relation string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, fakeEdge{fromType, fromID, toType, toID, relation})
}

func (f *fakeStore) edgeCount(fromType, fromID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, e := range f.edges {
		if e.fromType == fromType && e.fromID == fromID {
			count++
		}
	}
	return count
}

func (f *fakeStore) requestCount(pathPart string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, p := range f.requests {
		if strings.Contains(p, pathPart) {
			count++
		}
	}
	return count
}

func (f *fakeStore) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		fail := f.failWhen != nil && f.failWhen(r.URL.Path, body)
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","message":"injected failure"}`))
			return
		}

		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, "/crm/v4/associations/"):
			f.handleAssociations(w, path, body)
		case strings.HasSuffix(path, "/search"):
			f.handleSearch(w, path, body)
		case strings.HasSuffix(path, "/batch/read"):
			f.handleBatchRead(w, path, body)
		case strings.HasSuffix(path, "/batch/update"):
			f.handleBatchUpdate(w, path, body)
		case strings.HasSuffix(path, "/batch/create"):
			f.handleBatchCreate(w, path, body)
		case strings.HasSuffix(path, "/batch/archive"):
			f.handleBatchArchive(w, path, body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func objectTypeFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/crm/v3/objects/")
	return strings.SplitN(trimmed, "/", 2)[0]
}

type fakeIDInput struct {
	ID string `json:"id"`
}

func (f *fakeStore) handleBatchRead(w http.ResponseWriter, path string, body []byte) {
	objectType := objectTypeFromPath(path)
	var req struct {
		Inputs []fakeIDInput `json:"inputs"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()

	var results []map[string]interface{}
	for _, input := range req.Inputs {
		if props, ok := f.objects[objectType][input.ID]; ok {
			results = append(results, map[string]interface{}{"id": input.ID, "properties": props})
		}
	}
	writeJSON(w, map[string]interface{}{"status": "COMPLETE", "results": results})
}

func (f *fakeStore) handleBatchUpdate(w http.ResponseWriter, path string, body []byte) {
	objectType := objectTypeFromPath(path)
	var req struct {
		Inputs []struct {
			ID         string            `json:"id"`
			Properties map[string]string `json:"properties"`
		} `json:"inputs"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()

	var results []map[string]interface{}
	for _, input := range req.Inputs {
		props, ok := f.objects[objectType][input.ID]
		if !ok {
			continue
		}
		for k, v := range input.Properties {
			props[k] = v
		}
		results = append(results, map[string]interface{}{"id": input.ID, "properties": props})
	}
	writeJSON(w, map[string]interface{}{"status": "COMPLETE", "results": results})
}

func (f *fakeStore) handleBatchCreate(w http.ResponseWriter, path string, body []byte) {
	objectType := objectTypeFromPath(path)
	var req struct {
		Inputs []struct {
			Properties map[string]string `json:"properties"`
		} `json:"inputs"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.objects[objectType] == nil {
		f.objects[objectType] = make(map[string]map[string]string)
	}

	var results []map[string]interface{}
	for _, input := range req.Inputs {
		id := strconv.Itoa(f.nextID)
		f.nextID++
		f.objects[objectType][id] = input.Properties
		results = append(results, map[string]interface{}{"id": id, "properties": input.Properties})
	}
	writeJSON(w, map[string]interface{}{"status": "COMPLETE", "results": results})
}

func (f *fakeStore) handleBatchArchive(w http.ResponseWriter, path string, body []byte) {
	objectType := objectTypeFromPath(path)
	var req struct {
		Inputs []fakeIDInput `json:"inputs"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, input := range req.Inputs {
		delete(f.objects[objectType], input.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeStore) handleSearch(w http.ResponseWriter, path string, body []byte) {
	objectType := objectTypeFromPath(path)
	var req struct {
		Filters []struct {
			PropertyName string `json:"propertyName"`
			Operator     string `json:"operator"`
			Value        string `json:"value"`
		} `json:"filters"`
		Limit int `json:"limit"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []string
	for id, props := range f.objects[objectType] {
		ok := true
		for _, filter := range req.Filters {
			value := props[filter.PropertyName]
			switch filter.Operator {
			case "EQ":
				ok = ok && value == filter.Value
			case "GTE":
				ok = ok && value >= filter.Value
			case "LTE":
				ok = ok && value <= filter.Value
			default:
				ok = false
			}
		}
		if ok {
			matched = append(matched, id)
		}
	}
	sort.Strings(matched)

	total := len(matched)
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}

	var results []map[string]interface{}
	for _, id := range matched {
		results = append(results, map[string]interface{}{"id": id, "properties": f.objects[objectType][id]})
	}
	writeJSON(w, map[string]interface{}{"total": total, "results": results})
}

func (f *fakeStore) handleAssociations(w http.ResponseWriter, path string, body []byte) {
	parts := strings.Split(strings.TrimPrefix(path, "/crm/v4/associations/"), "/")
	if len(parts) != 4 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fromType, toType, op := parts[0], parts[1], parts[3]

	switch op {
	case "read":
		var req struct {
			Inputs []fakeIDInput `json:"inputs"`
		}
		_ = json.Unmarshal(body, &req)

		f.mu.Lock()
		defer f.mu.Unlock()

		var results []map[string]interface{}
		for _, input := range req.Inputs {
			var targets []map[string]interface{}
			for _, e := range f.edges {
				var farID, relation string
				if e.fromType == fromType && e.fromID == input.ID && e.toType == toType {
					farID, relation = e.toID, e.relation
				} else if e.toType == fromType && e.toID == input.ID && e.fromType == toType {
					farID, relation = e.fromID, e.relation
				} else {
					continue
				}
				targets = append(targets, map[string]interface{}{
					"id":   f.encodeAssociationID(farID),
					"type": relation,
				})
			}
			if len(targets) > 0 {
				results = append(results, map[string]interface{}{
					"from": map[string]interface{}{"id": input.ID},
					"to":   targets,
				})
			}
		}
		writeJSON(w, map[string]interface{}{"status": "COMPLETE", "results": results})

	case "create":
		var req struct {
			Inputs []struct {
				From fakeIDInput `json:"from"`
				To   fakeIDInput `json:"to"`
				Type string      `json:"type"`
			} `json:"inputs"`
		}
		_ = json.Unmarshal(body, &req)

		f.mu.Lock()
		defer f.mu.Unlock()
		for _, input := range req.Inputs {
			f.edges = append(f.edges, fakeEdge{fromType, input.From.ID, toType, input.To.ID, input.Type})
		}
		w.WriteHeader(http.StatusCreated)

	case "archive":
		var req struct {
			Inputs []struct {
				From fakeIDInput `json:"from"`
				To   fakeIDInput `json:"to"`
			} `json:"inputs"`
		}
		_ = json.Unmarshal(body, &req)

		f.mu.Lock()
		defer f.mu.Unlock()
		for _, input := range req.Inputs {
			kept := f.edges[:0]
			for _, e := range f.edges {
				if e.fromType == fromType && e.fromID == input.From.ID &&
					e.toType == toType && e.toID == input.To.ID {
					continue
				}
				kept = append(kept, e)
			}
			f.edges = kept
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// encodeAssociationID returns a raw number for all-digit ids when the
// numeric flavor is enabled, mimicking the older endpoint version
func (f *fakeStore) encodeAssociationID(id string) interface{} {
	if f.numericAssociationIDs {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && (id == "0" || id[0] != '0') {
			return n
		}
	}
	return id
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// ============================================================================
// Environment
// ============================================================================

const (
	testContactID = "12345"
	testStudentID = "STU1001"
	testEmail     = "student@example.com"
	testSessionID = "777"
)

type testEnv struct {
	store       *fakeStore
	contactRepo *crm.ContactRepository
	bookingRepo *crm.BookingRepository
	sessionRepo *crm.SessionRepository
	batch       *crm.BatchClient
	resolver    *AssociationResolver
	ledger      *CreditLedgerService
	compensator *CompensationManager
	svc         *BookingService
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeStore()
	server := httptest.NewServer(store.handler())
	t.Cleanup(server.Close)

	cfg := config.CRMConfig{
		BaseURL:               server.URL,
		AccessToken:           "test-token",
		Timeout:               5 * time.Second,
		ObjectBatchLimit:      100,
		AssociationBatchLimit: 1000,
		WriteBatchLimit:       100,
	}

	logger := quietLogger()
	client := crm.NewClient(cfg, logger)
	batch := crm.NewBatchClient(client, cfg, logger)
	contactRepo := crm.NewContactRepository(client, batch)
	bookingRepo := crm.NewBookingRepository(client, batch)
	sessionRepo := crm.NewSessionRepository(client, batch)
	resolver := NewAssociationResolver(batch, sessionRepo, logger)
	ledger := NewCreditLedgerService(contactRepo, logger)
	compensator := NewCompensationManager(bookingRepo, sessionRepo, ledger, batch, nil, logger)
	svc := NewBookingService(contactRepo, bookingRepo, sessionRepo, batch, resolver, ledger, compensator, logger)

	return &testEnv{
		store:       store,
		contactRepo: contactRepo,
		bookingRepo: bookingRepo,
		sessionRepo: sessionRepo,
		batch:       batch,
		resolver:    resolver,
		ledger:      ledger,
		compensator: compensator,
		svc:         svc,
	}
}

// seedContact stores the standard test contact with the given balances
func (env *testEnv) seedContact(sjt, cs, mm, shared int) {
	env.store.putObject(models.ObjectTypeContact, testContactID, map[string]string{
		"student_id":     testStudentID,
		"email":          testEmail,
		"sjt_credits":    strconv.Itoa(sjt),
		"cs_credits":     strconv.Itoa(cs),
		"mm_credits":     strconv.Itoa(mm),
		"shared_credits": strconv.Itoa(shared),
	})
}

// seedSession stores an exam session dated 30 days out
func (env *testEnv) seedSession(id string, examType models.ExamType, capacity, booked int) {
	env.store.putObject(models.ObjectTypeExamSession, id, map[string]string{
		"exam_type":    string(examType),
		"session_date": time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
		"start_time":   "09:00",
		"end_time":     "12:00",
		"location":     "Test Centre A",
		"capacity":     strconv.Itoa(capacity),
		"booked_count": strconv.Itoa(booked),
	})
}

// reserve runs a reserve for the standard student against a session
func (env *testEnv) reserve(t *testing.T, sessionID string, examType models.ExamType) (*models.Booking, error) {
	t.Helper()
	return env.svc.Reserve(context.Background(), testContactID, &models.CreateBookingRequest{
		StudentID:     testStudentID,
		Email:         testEmail,
		ExamSessionID: sessionID,
		ExamType:      string(examType),
	})
}

// mustReserve reserves and fails the test on error
func (env *testEnv) mustReserve(t *testing.T, sessionID string, examType models.ExamType) *models.Booking {
	t.Helper()
	booking, err := env.reserve(t, sessionID, examType)
	require.NoError(t, err)
	require.NotNil(t, booking)
	return booking
}

func (env *testEnv) creditProp(key string) int {
	n, _ := strconv.Atoi(env.store.getProp(models.ObjectTypeContact, testContactID, key))
	return n
}

func (env *testEnv) bookedCount(sessionID string) int {
	n, _ := strconv.Atoi(env.store.getProp(models.ObjectTypeExamSession, sessionID, "booked_count"))
	return n
}
