// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package streamer

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/models"
)

// NDJSONHandler streams warning messages to HTTP clients as
// newline-delimited JSON. The connection stays open until the client
// disconnects or the hub shuts down; idle periods carry ping frames so
// intermediaries do not reap the connection.
type NDJSONHandler struct {
	hub          *Hub
	pingInterval time.Duration
}

// NewNDJSONHandler creates the live stream endpoint handler.
func NewNDJSONHandler(hub *Hub, pingInterval time.Duration) *NDJSONHandler {
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	return &NDJSONHandler{
		hub:          hub,
		pingInterval: pingInterval,
	}
}

// ServeHTTP implements the streaming endpoint.
func (h *NDJSONHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so frames reach the client immediately.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messages, cancel := h.hub.Subscribe()
	defer cancel()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-messages:
			if !ok {
				return // hub shut down
			}
			if !h.writeFrame(w, flusher, msg) {
				return
			}

		case <-ticker.C:
			ping := models.PingMessage()
			if !h.writeFrame(w, flusher, &ping) {
				return
			}
		}
	}
}

// writeFrame writes one NDJSON line and flushes. Returns false when the
// client is gone.
func (h *NDJSONHandler) writeFrame(w http.ResponseWriter, flusher http.Flusher, msg *models.StreamMessage) bool {
	line, err := json.Marshal(msg)
	if err != nil {
		logging.Err(err).Msg("Failed to marshal stream frame")
		return true // skip the frame, keep the connection
	}

	if _, err := w.Write(append(line, '\n')); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
