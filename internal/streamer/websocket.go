// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package streamer

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // clients only send control chatter
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stream is read-only public data; origin enforcement happens
	// in the CORS middleware in front of this handler.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler mirrors the NDJSON stream over WebSocket for browser
// clients that want built-in reconnect semantics.
type WSHandler struct {
	hub *Hub
}

// NewWSHandler creates the WebSocket stream handler.
func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// ServeHTTP upgrades the connection and starts the pumps.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Msg("WebSocket upgrade failed")
		return
	}

	messages, cancel := h.hub.Subscribe()

	go h.writePump(conn, messages, cancel)
	go h.readPump(conn, cancel)
}

// readPump discards client frames and keeps the pong deadline fresh.
func (h *WSHandler) readPump(conn *websocket.Conn, cancel func()) {
	defer func() {
		cancel()
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Err(err).Msg("Failed to set websocket read deadline")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Err(err).Msg("Unexpected websocket close")
			}
			return
		}
	}
}

// writePump forwards hub messages and protocol pings to the client.
func (h *WSHandler) writePump(conn *websocket.Conn, messages <-chan *models.StreamMessage, cancel func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-messages:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
