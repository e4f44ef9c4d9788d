// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
)

// DeadLetterStore persists poisoned messages for operator inspection.
type DeadLetterStore interface {
	RecordDeadLetter(ctx context.Context, warningID, topic, reason string, payload []byte) error
}

// DLQConsumer drains the poison topic. Every message that exhausted its
// retries lands here; the consumer records it durably and always acks,
// so the poison topic never wedges.
type DLQConsumer struct {
	store DeadLetterStore
}

// NewDLQConsumer creates a poison topic consumer backed by the store.
func NewDLQConsumer(store DeadLetterStore) *DLQConsumer {
	return &DLQConsumer{store: store}
}

// Register attaches the consumer to the router's poison topic.
func (c *DLQConsumer) Register(router *Router, subscriber message.Subscriber) {
	router.AddConsumerHandler(
		"dlq_recorder",
		router.config.PoisonQueueTopic,
		subscriber,
		c.Handle,
	)
}

// Handle records one poisoned message. Metadata written by the poison
// queue middleware carries the original topic and failure reason.
func (c *DLQConsumer) Handle(msg *message.Message) error {
	reason := msg.Metadata.Get(middleware.ReasonForPoisonedKey)
	origTopic := msg.Metadata.Get(middleware.PoisonedTopicKey)

	warningID := msg.UUID
	if wm, err := DeserializeMessage(msg.Payload); err == nil {
		warningID = wm.WarningID
	}

	logging.Error().
		Str("warning_id", warningID).
		Str("original_topic", origTopic).
		Str("reason", reason).
		Msg("Warning message dead-lettered")

	metrics.DeadLetters.Inc()
	metrics.QueueConsumed.WithLabelValues(TopicPoison).Inc()

	if err := c.store.RecordDeadLetter(msg.Context(), warningID, origTopic, reason, msg.Payload); err != nil {
		// Recording is best effort: the log line above is the fallback
		// record, and nacking here would just loop the poison message.
		logging.Err(err).Str("warning_id", warningID).Msg("Failed to persist dead letter")
	}

	return nil
}
