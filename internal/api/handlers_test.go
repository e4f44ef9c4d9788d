// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/cursor"
	"github.com/marekvw/gitsentry/internal/database"
	"github.com/marekvw/gitsentry/internal/models"
)

type fakeStore struct {
	pingErr     error
	events      int64
	deadLetters int64

	searchTerm    string
	searchLimit   int
	searchResults []*database.WarningRecord
	searchErr     error

	listSince   time.Time
	listLimit   int
	listResults []*database.WarningRecord
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) CountEvents(context.Context) (int64, error) { return s.events, nil }

func (s *fakeStore) CountDeadLetters(context.Context) (int64, error) { return s.deadLetters, nil }

func (s *fakeStore) SearchAnalyzedWarnings(_ context.Context, term string, limit int) ([]*database.WarningRecord, error) {
	s.searchTerm = term
	s.searchLimit = limit
	return s.searchResults, s.searchErr
}

func (s *fakeStore) ListAnalyzedWarningsSince(_ context.Context, since time.Time, limit int) ([]*database.WarningRecord, error) {
	s.listSince = since
	s.listLimit = limit
	return s.listResults, nil
}

type fakeCursorReader struct {
	state cursor.State
	err   error
}

func (c *fakeCursorReader) Get() (cursor.State, error) { return c.state, c.err }

type fakeQueue struct {
	running   bool
	jetstream bool
}

func (q *fakeQueue) IsRunning() bool        { return q.running }
func (q *fakeQueue) JetStreamEnabled() bool { return q.jetstream }

func serverConfig() config.ServerConfig {
	cfg := config.DefaultConfig().Server
	cfg.RateLimitDisabled = true
	return cfg
}

func newTestServer(t *testing.T, store *fakeStore, cursorReader CursorReader, queue QueueHealth) *httptest.Server {
	t.Helper()
	router := NewRouter(serverConfig(), NewHandler(store, cursorReader, queue), nil, nil)
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func analyzedRecord(id, warningType string) *database.WarningRecord {
	now := time.Now().UTC()
	return &database.WarningRecord{
		Warning: models.Warning{
			ID:              id,
			WarningType:     warningType,
			RootCause:       []string{"direct push to default branch"},
			Impact:          []string{"review process bypassed"},
			NextSteps:       []string{"enable branch protection"},
			HasBeenAnalyzed: true,
			CreatedAt:       now,
			AnalyzedAt:      &now,
		},
		Payload: json.RawMessage(`{"ref":"refs/heads/main"}`),
	}
}

func TestHealthHealthy(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, &fakeQueue{running: true, jetstream: true})

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeResponse(t, resp)
	data, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", body.Data)
	}
	if data["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", data["status"])
	}
	if data["database_connected"] != true || data["queue_running"] != true {
		t.Fatalf("unexpected health payload: %v", data)
	}
}

func TestHealthDegradedWhenQueueDown(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, &fakeQueue{running: false})

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	body := decodeResponse(t, resp)
	data := body.Data.(map[string]interface{})
	if data["status"] != "degraded" {
		t.Fatalf("expected degraded, got %v", data["status"])
	}
}

func TestHealthReadyReturns503WhenDatabaseDown(t *testing.T) {
	srv := newTestServer(t, &fakeStore{pingErr: errors.New("connection refused")}, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatalf("ready request: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Success || body.Error == nil || body.Error.Code != ErrCodeServiceUnavailable {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestHealthLiveAlwaysOK(t *testing.T) {
	srv := newTestServer(t, &fakeStore{pingErr: errors.New("down")}, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatalf("live request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSearchReturnsMatches(t *testing.T) {
	store := &fakeStore{searchResults: []*database.WarningRecord{
		analyzedRecord("w-1", models.WarningPushDefault),
	}}
	srv := newTestServer(t, store, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/search?q=acme&limit=25")
	if err != nil {
		t.Fatalf("search request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if store.searchTerm != "acme" || store.searchLimit != 25 {
		t.Fatalf("store saw term=%q limit=%d", store.searchTerm, store.searchLimit)
	}
	if body.Meta == nil || body.Meta.Count != 1 {
		t.Fatalf("expected count 1, got %+v", body.Meta)
	}

	items, ok := body.Data.([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected data: %v", body.Data)
	}
	msg := items[0].(map[string]interface{})
	if msg["warning_id"] != "w-1" || msg["warning_type"] != models.WarningPushDefault {
		t.Fatalf("unexpected message: %v", msg)
	}
	if msg["analysis"] == nil {
		t.Fatal("expected analysis on analyzed warning")
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/search")
	if err != nil {
		t.Fatalf("search request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Error == nil || body.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("unexpected error: %+v", body.Error)
	}
}

func TestSearchRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, nil, nil)

	for _, limit := range []string{"abc", "0", "100000"} {
		resp, err := http.Get(srv.URL + "/api/v1/search?q=x&limit=" + limit)
		if err != nil {
			t.Fatalf("search request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", limit, resp.StatusCode)
		}
	}
}

func TestSearchDatabaseErrorIsOpaque(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("table scan exploded")}
	srv := newTestServer(t, store, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/search?q=x")
	if err != nil {
		t.Fatalf("search request: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Error == nil || body.Error.Code != ErrCodeDatabaseError {
		t.Fatalf("unexpected error: %+v", body.Error)
	}
	if body.Error.Message == "table scan exploded" {
		t.Fatal("internal error message leaked to client")
	}
}

func TestSummariesParsesSince(t *testing.T) {
	store := &fakeStore{listResults: []*database.WarningRecord{
		analyzedRecord("w-2", models.WarningRepoMadePublic),
	}}
	srv := newTestServer(t, store, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/summaries?since=1700000000&limit=10")
	if err != nil {
		t.Fatalf("summaries request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeResponse(t, resp)

	if got := store.listSince.Unix(); got != 1700000000 {
		t.Fatalf("expected since 1700000000, got %d", got)
	}
	if store.listLimit != 10 {
		t.Fatalf("expected limit 10, got %d", store.listLimit)
	}
}

func TestSummariesDefaults(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(t, store, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/summaries")
	if err != nil {
		t.Fatalf("summaries request: %v", err)
	}
	body := decodeResponse(t, resp)
	if store.listLimit != 100 {
		t.Fatalf("expected default limit 100, got %d", store.listLimit)
	}
	// Empty result must encode as [] rather than null.
	items, ok := body.Data.([]interface{})
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty array, got %v", body.Data)
	}
}

func TestStatsIncludesCursor(t *testing.T) {
	updated := time.Now().UTC().Truncate(time.Second)
	cursorReader := &fakeCursorReader{state: cursor.State{
		EventID:   "12345",
		Version:   7,
		UpdatedAt: updated,
	}}
	srv := newTestServer(t, &fakeStore{events: 42, deadLetters: 3}, cursorReader, nil)

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("stats request: %v", err)
	}
	body := decodeResponse(t, resp)
	data := body.Data.(map[string]interface{})
	if data["events"] != float64(42) || data["dead_letters"] != float64(3) {
		t.Fatalf("unexpected counters: %v", data)
	}
	if data["cursor_event_id"] != "12345" || data["cursor_version"] != float64(7) {
		t.Fatalf("unexpected cursor: %v", data)
	}
}

func TestStatsWithoutCursor(t *testing.T) {
	srv := newTestServer(t, &fakeStore{events: 1}, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("stats request: %v", err)
	}
	body := decodeResponse(t, resp)
	data := body.Data.(map[string]interface{})
	if _, present := data["cursor_event_id"]; present {
		t.Fatalf("expected no cursor fields, got %v", data)
	}
}
