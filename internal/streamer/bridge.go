// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package streamer

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/warningqueue"
)

// Source produces the live firehose of warning messages.
type Source interface {
	SubscribeAll(ctx context.Context) (<-chan *message.Message, error)
	Close() error
}

// Bridge connects the warning stream to the hub. It consumes every
// subject in the warning space through an ephemeral subscriber: flagged
// and analyzed messages fan out to clients, poison messages are
// dropped. Delivery here is best effort by design; clients needing a
// complete record query the summaries API instead.
type Bridge struct {
	source Source
	hub    *Hub
}

// NewBridge creates the queue-to-hub bridge.
func NewBridge(source Source, hub *Hub) *Bridge {
	return &Bridge{
		source: source,
		hub:    hub,
	}
}

// Run consumes the firehose until the context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	messages, err := b.source.SubscribeAll(ctx)
	if err != nil {
		return err
	}

	logging.Info().Msg("Stream bridge attached to warning firehose")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg *message.Message) {
	defer msg.Ack()

	// Poison copies carry the middleware's reason metadata; they are
	// operator data, not client data.
	if msg.Metadata.Get(middleware.ReasonForPoisonedKey) != "" {
		return
	}

	wm, err := warningqueue.DeserializeMessage(msg.Payload)
	if err != nil {
		logging.Err(err).Str("message_uuid", msg.UUID).Msg("Undecodable message on warning firehose")
		return
	}

	topic := warningqueue.TopicFlagged
	if wm.Analysis != nil {
		topic = warningqueue.TopicAnalyzed
	}
	metrics.QueueConsumed.WithLabelValues(topic).Inc()

	b.hub.Broadcast(wm.StreamMessage())
}
