// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package streamer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
)

// clientIDCounter generates unique, monotonically increasing ids so
// broadcast order over connected clients is deterministic.
var clientIDCounter atomic.Uint64

// subscriber is one connected stream consumer. The send channel is a
// bounded backlog; a consumer that falls behind loses its oldest frames
// rather than stalling the hub.
type subscriber struct {
	id   uint64
	send chan *models.StreamMessage
}

// Hub fans warning messages out to every connected stream client,
// NDJSON and WebSocket alike.
type Hub struct {
	clients   map[*subscriber]bool
	broadcast chan *models.StreamMessage
	backlog   int
	closed    bool
	mu        sync.RWMutex
}

// NewHub creates a hub whose clients each buffer up to backlog messages.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = 256
	}
	return &Hub{
		clients:   make(map[*subscriber]bool),
		broadcast: make(chan *models.StreamMessage, 256),
		backlog:   backlog,
	}
}

// Run starts the hub loop and blocks until the context is canceled.
// Designed for suture supervision: on shutdown every client channel is
// closed so handlers unblock and return.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return ctx.Err()
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// Subscribe registers a new stream client. The returned cancel func
// must be called when the client disconnects. The message channel is
// closed on cancel or hub shutdown.
func (h *Hub) Subscribe() (<-chan *models.StreamMessage, func()) {
	sub := &subscriber{
		id:   clientIDCounter.Add(1),
		send: make(chan *models.StreamMessage, h.backlog),
	}

	h.mu.Lock()
	if h.closed {
		close(sub.send)
		h.mu.Unlock()
		return sub.send, func() {}
	}
	h.clients[sub] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("Stream client connected")

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.removeClient(sub) })
	}

	return sub.send, cancel
}

// Broadcast queues a message for every connected client. Never blocks;
// if the hub itself is saturated the message is dropped and counted.
func (h *Hub) Broadcast(msg *models.StreamMessage) {
	select {
	case h.broadcast <- msg:
	default:
		metrics.StreamMessagesDropped.Inc()
		logging.Warn().Msg("Stream hub saturated, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("Stream client disconnected")
}

// broadcastToClients delivers one message to every client in id order.
// A client with a full backlog loses its oldest frame to make room;
// live tails prefer fresh data over complete data.
func (h *Hub) broadcastToClients(msg *models.StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*subscriber, 0, len(h.clients))
	for sub := range h.clients {
		clients = append(clients, sub)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, sub := range clients {
		select {
		case sub.send <- msg:
			metrics.StreamMessagesSent.Inc()
			continue
		default:
		}

		// Backlog full: evict the oldest frame, then retry once.
		select {
		case <-sub.send:
			metrics.StreamMessagesDropped.Inc()
		default:
		}
		select {
		case sub.send <- msg:
			metrics.StreamMessagesSent.Inc()
		default:
			metrics.StreamMessagesDropped.Inc()
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.clients {
		close(sub.send)
		delete(h.clients, sub)
	}

	metrics.StreamClients.Set(0)
	logging.Info().Msg("Closed all stream clients during shutdown")
}
