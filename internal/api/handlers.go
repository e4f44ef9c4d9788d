// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/marekvw/gitsentry/internal/cursor"
	"github.com/marekvw/gitsentry/internal/database"
	"github.com/marekvw/gitsentry/internal/models"
	"github.com/marekvw/gitsentry/internal/validation"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Store is the database surface the handlers query.
type Store interface {
	Ping(ctx context.Context) error
	CountEvents(ctx context.Context) (int64, error)
	CountDeadLetters(ctx context.Context) (int64, error)
	SearchAnalyzedWarnings(ctx context.Context, term string, limit int) ([]*database.WarningRecord, error)
	ListAnalyzedWarningsSince(ctx context.Context, since time.Time, limit int) ([]*database.WarningRecord, error)
}

// CursorReader exposes the poller cursor for the stats endpoint.
type CursorReader interface {
	Get() (cursor.State, error)
}

// QueueHealth reports whether the embedded message broker is serving.
type QueueHealth interface {
	IsRunning() bool
	JetStreamEnabled() bool
}

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	store     Store
	cursor    CursorReader
	queue     QueueHealth
	startTime time.Time
}

// NewHandler creates the handler set. cursor and queue may be nil when the
// corresponding subsystem is not wired, the health endpoints degrade
// accordingly.
func NewHandler(store Store, cursorReader CursorReader, queue QueueHealth) *Handler {
	return &Handler{
		store:     store,
		cursor:    cursorReader,
		queue:     queue,
		startTime: time.Now(),
	}
}

// healthStatus is the payload of the health endpoint.
type healthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	QueueRunning      bool    `json:"queue_running"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Health reports overall pipeline health: degraded when the database or
// the queue is down, healthy otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil
	queueRunning := h.queue != nil && h.queue.IsRunning() && h.queue.JetStreamEnabled()

	status := "healthy"
	if !dbConnected || !queueRunning {
		status = "degraded"
	}

	rw.Success(healthStatus{
		Status:            status,
		Version:           Version,
		DatabaseConnected: dbConnected,
		QueueRunning:      queueRunning,
		UptimeSeconds:     time.Since(h.startTime).Seconds(),
	})
}

// HealthLive is the liveness probe: 200 whenever the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady is the readiness probe: 503 until the database answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.store == nil || h.store.Ping(r.Context()) != nil {
		rw.ServiceUnavailable("database not ready")
		return
	}

	rw.Success(map[string]interface{}{"ready": true})
}

// searchRequest carries the validated query parameters of the search endpoint.
type searchRequest struct {
	Query string `validate:"required,min=1,max=256"`
	Limit int    `validate:"min=1,max=500"`
}

// Search returns analyzed warnings whose linked events match the query
// term by repository, organization, or actor.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req := searchRequest{
		Query: r.URL.Query().Get("q"),
		Limit: 100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		req.Limit = limit
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields())
		return
	}

	records, err := h.store.SearchAnalyzedWarnings(r.Context(), req.Query, req.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithMeta(toStreamMessages(records), &APIMeta{Count: len(records)})
}

// summariesRequest carries the validated query parameters of the
// summaries endpoint.
type summariesRequest struct {
	Since int64 `validate:"min=0"`
	Limit int   `validate:"min=1,max=500"`
}

// Summaries lists analyzed warnings created strictly after the given unix
// timestamp, oldest first, so clients can page forward through history.
func (h *Handler) Summaries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req := summariesRequest{Limit: 100}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			rw.BadRequest("since must be a unix timestamp")
			return
		}
		req.Since = since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		req.Limit = limit
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.Fields())
		return
	}

	records, err := h.store.ListAnalyzedWarningsSince(r.Context(), time.Unix(req.Since, 0).UTC(), req.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithMeta(toStreamMessages(records), &APIMeta{Count: len(records)})
}

// pipelineStats is the payload of the stats endpoint.
type pipelineStats struct {
	Events      int64 `json:"events"`
	DeadLetters int64 `json:"dead_letters"`

	CursorEventID   string     `json:"cursor_event_id,omitempty"`
	CursorVersion   uint64     `json:"cursor_version,omitempty"`
	CursorUpdatedAt *time.Time `json:"cursor_updated_at,omitempty"`
}

// Stats reports ingest counters and the current poll cursor.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	events, err := h.store.CountEvents(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	deadLetters, err := h.store.CountDeadLetters(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	stats := pipelineStats{
		Events:      events,
		DeadLetters: deadLetters,
	}
	if h.cursor != nil {
		if state, err := h.cursor.Get(); err == nil && state.EventID != "" {
			stats.CursorEventID = state.EventID
			stats.CursorVersion = state.Version
			updatedAt := state.UpdatedAt
			stats.CursorUpdatedAt = &updatedAt
		}
	}

	rw.Success(stats)
}

// toStreamMessages always yields a non-nil slice so empty results encode
// as [] instead of null.
func toStreamMessages(records []*database.WarningRecord) []models.StreamMessage {
	out := make([]models.StreamMessage, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.StreamMessage())
	}
	return out
}
