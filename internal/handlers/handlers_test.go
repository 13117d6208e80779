package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"healthmate/internal/models"
	"healthmate/internal/storage"
	"healthmate/internal/worker"
)

// fakeStore is an in-memory ReadingStore and SettingsStore
type fakeStore struct {
	mu       sync.Mutex
	readings map[string]*models.Measurement
	settings map[string]*models.UserSettings
	inbox    []models.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		readings: map[string]*models.Measurement{},
		settings: map[string]*models.UserSettings{},
	}
}

func (f *fakeStore) InsertMeasurement(_ context.Context, m *models.Measurement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.readings[m.ID]; ok {
		return storage.ErrDuplicate
	}
	f.readings[m.ID] = m
	return nil
}

func (f *fakeStore) ListMeasurements(_ context.Context, userID string, limit int) ([]*models.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Measurement
	for _, m := range f.readings {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteMeasurement(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.readings[id]; !ok {
		return fmt.Errorf("measurement %s: %w", id, storage.ErrNotFound)
	}
	delete(f.readings, id)
	return nil
}

func (f *fakeStore) Settings(_ context.Context, userID string) (*models.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[userID]; ok {
		return s, nil
	}
	s := models.DefaultSettings(userID)
	f.settings[userID] = s
	return s, nil
}

func (f *fakeStore) SaveSettings(_ context.Context, s *models.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[s.UserID] = s
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	return f.inbox, nil
}

type fakeQueue struct {
	submitted []*models.Measurement
	err       error
}

func (q *fakeQueue) Submit(m *models.Measurement) error {
	if q.err != nil {
		return q.err
	}
	q.submitted = append(q.submitted, m)
	return nil
}

func newMux(store *fakeStore, queue *fakeQueue) *http.ServeMux {
	mux := http.NewServeMux()
	NewReadingsHandler(ReadingsConfig{Store: store, Queue: queue}).Register(mux)
	NewSettingsHandler(store).Register(mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestCreateReading_BloodPressure(t *testing.T) {
	store, queue := newFakeStore(), &fakeQueue{}
	mux := newMux(store, queue)

	w := do(mux, http.MethodPost, "/readings", `{
		"id": "r-1",
		"user_id": "user-1",
		"kind": "blood_pressure",
		"taken_at": "2024-03-05T08:30:00Z",
		"systolic": 150,
		"diastolic": 95
	}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || resp.Reading.Value != "150/95 mmHg" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(queue.submitted) != 1 || queue.submitted[0].ID != "r-1" {
		t.Fatalf("reading not queued: %+v", queue.submitted)
	}
	if _, ok := store.readings["r-1"]; !ok {
		t.Error("reading not stored")
	}
}

func TestCreateReading_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"bad json", `{"kind":`, http.StatusBadRequest},
		{"unknown field", `{"user_id":"u","kind":"blood_pressure","systolic":1,"diastolic":1,"pulse":60}`, http.StatusBadRequest},
		{"missing diastolic", `{"user_id":"u","kind":"blood_pressure","systolic":120}`, http.StatusBadRequest},
		{"sugar without context", `{"user_id":"u","kind":"blood_sugar","level":90}`, http.StatusBadRequest},
		{"unknown kind", `{"user_id":"u","kind":"heart_rate"}`, http.StatusBadRequest},
		{"missing user", `{"kind":"blood_sugar","level":90,"context":"fasting"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, queue := newFakeStore(), &fakeQueue{}
			w := do(newMux(store, queue), http.MethodPost, "/readings", tt.body)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if len(queue.submitted) != 0 || len(store.readings) != 0 {
				t.Error("rejected reading must not be stored or queued")
			}
		})
	}
}

func TestCreateReading_WrongContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/readings", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	newMux(newFakeStore(), &fakeQueue{}).ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", w.Code)
	}
}

func TestCreateReading_Duplicate(t *testing.T) {
	mux := newMux(newFakeStore(), &fakeQueue{})
	body := `{"id":"r-1","user_id":"u","kind":"blood_sugar","level":90,"context":"Fasting"}`

	if w := do(mux, http.MethodPost, "/readings", body); w.Code != http.StatusAccepted {
		t.Fatalf("first insert: %d", w.Code)
	}
	if w := do(mux, http.MethodPost, "/readings", body); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestCreateReading_QueueFullRollsBack(t *testing.T) {
	store := newFakeStore()
	mux := newMux(store, &fakeQueue{err: worker.ErrQueueFull})

	w := do(mux, http.MethodPost, "/readings", `{"id":"r-1","user_id":"u","kind":"blood_sugar","level":90,"context":"fasting"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if len(store.readings) != 0 {
		t.Error("reading should be rolled back so the client can retry")
	}
}

func TestListAndDeleteReadings(t *testing.T) {
	store := newFakeStore()
	mux := newMux(store, &fakeQueue{})

	for i, ts := range []string{"2024-03-01T08:00:00Z", "2024-03-02T08:00:00Z"} {
		body := fmt.Sprintf(`{"id":"r-%d","user_id":"u","kind":"blood_pressure","taken_at":%q,"systolic":120,"diastolic":80}`, i, ts)
		if w := do(mux, http.MethodPost, "/readings", body); w.Code != http.StatusAccepted {
			t.Fatalf("insert %d: %d", i, w.Code)
		}
	}

	w := do(mux, http.MethodGet, "/readings?user_id=u", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var list []ReadingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "r-1" {
		t.Errorf("expected newest first, got %+v", list)
	}

	if w := do(mux, http.MethodGet, "/readings", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: expected 400, got %d", w.Code)
	}
	if w := do(mux, http.MethodGet, "/readings?user_id=u&limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", w.Code)
	}

	if w := do(mux, http.MethodDelete, "/readings/r-0", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
	if w := do(mux, http.MethodDelete, "/readings/r-0", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	mux := newMux(newFakeStore(), &fakeQueue{})

	w := do(mux, http.MethodGet, "/settings/u-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var s models.UserSettings
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.Thresholds != models.DefaultThresholdRules() {
		t.Errorf("expected default thresholds, got %+v", s.Thresholds)
	}

	s.DisplayName = "Ayesha"
	s.UserID = "someone-else"
	s.Contacts = []models.EmergencyContact{{Name: "Sam", Email: "sam@example.com"}}
	body, _ := json.Marshal(s)

	w = do(mux, http.MethodPut, "/settings/u-1", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}

	w = do(mux, http.MethodGet, "/settings/u-1", "")
	var got models.UserSettings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u-1" || got.DisplayName != "Ayesha" || len(got.Contacts) != 1 {
		t.Errorf("settings not saved under path user: %+v", got)
	}
}

func TestPutSettingsValidation(t *testing.T) {
	mux := newMux(newFakeStore(), &fakeQueue{})

	tests := []struct {
		name string
		body string
	}{
		{"bad email", `{"emergency_contacts":[{"name":"Sam","email":"not-an-email"}],"thresholds":{"blood_pressure":{"min_systolic":90,"max_systolic":120,"min_diastolic":60,"max_diastolic":80},"fasting":{"min":70,"max":100},"after_meal":{"min":70,"max":140}}}`},
		{"inverted range", `{"thresholds":{"blood_pressure":{"min_systolic":130,"max_systolic":120,"min_diastolic":60,"max_diastolic":80},"fasting":{"min":70,"max":100},"after_meal":{"min":70,"max":140}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(mux, http.MethodPut, "/settings/u-1", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestNotificationsInbox(t *testing.T) {
	store := newFakeStore()
	mux := newMux(store, &fakeQueue{})

	w := do(mux, http.MethodGet, "/notifications/u-1", "")
	if w.Code != http.StatusOK || bytes.TrimSpace(w.Body.Bytes())[0] != '[' {
		t.Fatalf("expected empty list, got %d %s", w.Code, w.Body.String())
	}

	store.inbox = []models.Notification{{ID: "vital-1", UserID: "u-1", Title: "Out-of-Range Blood Pressure"}}
	w = do(mux, http.MethodGet, "/notifications/u-1", "")
	var got []models.Notification
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "vital-1" {
		t.Errorf("unexpected inbox: %+v", got)
	}
}
