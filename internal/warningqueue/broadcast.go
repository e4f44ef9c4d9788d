// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// BroadcastSubscriber is an ephemeral, deliver-new subscriber used to
// fan messages out to live stream clients. Unlike the durable queue
// consumer it has no competing semantics and no replay: a restart simply
// resumes from the tip of the stream. Messages are never retried here;
// a slow client drops frames instead of stalling the pipeline.
type BroadcastSubscriber struct {
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
}

// NewBroadcastSubscriber creates an ephemeral observer of the warning
// stream.
func NewBroadcastSubscriber(url string, logger watermill.LoggerAdapter) (*BroadcastSubscriber, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.DeliverNew(),
		natsgo.AckNone(),
		natsgo.BindStream(StreamName),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:            url,
		AckWaitTimeout: 30 * time.Second,
		CloseTimeout:   10 * time.Second,
		NatsOptions:    natsOpts,
		Unmarshaler:    &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         true,
			SubscribeOptions: subOpts,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create broadcast subscriber: %w", err)
	}

	return &BroadcastSubscriber{
		subscriber: sub,
		logger:     logger,
	}, nil
}

// SubscribeAll returns a channel carrying every message in the warning
// subject space, flagged and analyzed alike. Poison messages are
// filtered by the caller.
func (b *BroadcastSubscriber) SubscribeAll(ctx context.Context) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, "warnings.>")
}

// Close shuts down the subscriber.
func (b *BroadcastSubscriber) Close() error {
	return b.subscriber.Close()
}
