// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package main

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/marekvw/gitsentry/internal/analyzer"
	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/database"
	"github.com/marekvw/gitsentry/internal/enrich"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/warningqueue"
)

// queueComponents holds the messaging infrastructure built by initQueue.
// Shutdown order matters: router first so handlers drain, then the
// subscribers and publisher, then the connection, and the embedded
// server last.
type queueComponents struct {
	Server     *warningqueue.EmbeddedServer // nil when using an external broker
	Conn       *natsgo.Conn
	Publisher  *warningqueue.Publisher
	Subscriber *warningqueue.Subscriber
	Broadcast  *warningqueue.BroadcastSubscriber
	Router     *warningqueue.Router
}

// initQueue brings up the warning queue: the broker (embedded or
// external), the WARNINGS stream, the publisher, both subscribers, and
// the router with the analyzer and dead letter handlers registered.
// Every error path tears down what was already started.
func initQueue(ctx context.Context, cfg *config.Config, db *database.DB, enricher *enrich.Client) (*queueComponents, error) {
	components := &queueComponents{}

	url := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		logging.Info().
			Str("store_dir", cfg.NATS.StoreDir).
			Int64("max_memory", cfg.NATS.MaxMemory).
			Int64("max_store", cfg.NATS.MaxStore).
			Msg("Starting embedded NATS server")

		srv, err := warningqueue.NewEmbeddedServer(warningqueue.DefaultServerConfig(&cfg.NATS))
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		components.Server = srv
		url = srv.ClientURL()
	}

	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	components.Conn = nc

	streams, err := warningqueue.NewStreamManager(nc, warningqueue.DefaultStreamConfig(&cfg.NATS))
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create stream manager: %w", err)
	}

	stream, err := streams.EnsureStream(ctx)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure warning stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err == nil {
		logging.Info().
			Str("stream", info.Config.Name).
			Strs("subjects", info.Config.Subjects).
			Dur("max_age", info.Config.MaxAge).
			Uint64("messages", info.State.Msgs).
			Msg("Warning stream ready")
	}

	wmLogger := warningqueue.NewLoggerAdapter()

	pubCfg := warningqueue.DefaultPublisherConfig(&cfg.NATS)
	pubCfg.URL = url
	publisher, err := warningqueue.NewPublisher(pubCfg, wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	publisher.SetCircuitBreaker(gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "queue-publish",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}))
	components.Publisher = publisher

	subCfg := warningqueue.AnalyzerSubscriberConfig(&cfg.NATS, &cfg.Analyzer)
	subCfg.URL = url
	subscriber, err := warningqueue.NewSubscriber(subCfg, wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create analyzer subscriber: %w", err)
	}
	components.Subscriber = subscriber

	broadcast, err := warningqueue.NewBroadcastSubscriber(url, wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create broadcast subscriber: %w", err)
	}
	components.Broadcast = broadcast

	router, err := warningqueue.NewRouter(
		warningqueue.DefaultRouterConfig(&cfg.NATS),
		publisher.Messages(),
		wmLogger,
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create queue router: %w", err)
	}
	components.Router = router

	analyzer.New(db, enricher, publisher).Register(router, subscriber.Messages())
	warningqueue.NewDLQConsumer(db).Register(router, subscriber.Messages())

	logging.Info().
		Str("url", url).
		Str("queue_group", cfg.Analyzer.QueueGroup).
		Str("durable", cfg.Analyzer.DurableName).
		Msg("Warning queue initialized")

	return components, nil
}

// Shutdown tears down the queue components in reverse order of startup.
// Safe to call with partially initialized components.
func (c *queueComponents) Shutdown(ctx context.Context) {
	if c.Router != nil {
		if err := c.Router.Close(); err != nil {
			logging.Err(err).Msg("Failed to close queue router")
		}
	}
	if c.Broadcast != nil {
		if err := c.Broadcast.Close(); err != nil {
			logging.Err(err).Msg("Failed to close broadcast subscriber")
		}
	}
	if c.Subscriber != nil {
		if err := c.Subscriber.Close(); err != nil {
			logging.Err(err).Msg("Failed to close analyzer subscriber")
		}
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			logging.Err(err).Msg("Failed to close publisher")
		}
	}
	if c.Conn != nil {
		c.Conn.Close()
	}
	if c.Server != nil {
		if err := c.Server.Shutdown(ctx); err != nil {
			logging.Err(err).Msg("Failed to shut down embedded NATS server")
		}
	}
}
