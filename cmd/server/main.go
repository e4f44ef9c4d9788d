// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

// Command server runs the full monitoring pipeline: the events poller,
// the warning queue with its analyzer workers, the live stream hub, the
// retention sweeper, and the HTTP API, all under one supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marekvw/gitsentry/internal/analyzer"
	"github.com/marekvw/gitsentry/internal/api"
	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/cursor"
	"github.com/marekvw/gitsentry/internal/database"
	"github.com/marekvw/gitsentry/internal/enrich"
	"github.com/marekvw/gitsentry/internal/github"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/poller"
	"github.com/marekvw/gitsentry/internal/rules"
	"github.com/marekvw/gitsentry/internal/streamer"
	"github.com/marekvw/gitsentry/internal/supervisor"
	"github.com/marekvw/gitsentry/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Application failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("feed", cfg.GitHub.APIURL).
		Str("database", cfg.Database.Path).
		Msg("Starting GitSentry")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Err(err).Msg("Failed to close database")
		}
	}()

	cursorStore, err := cursor.Open(cfg.Cursor.Path)
	if err != nil {
		return fmt.Errorf("open cursor store: %w", err)
	}
	defer func() {
		if err := cursorStore.Close(); err != nil {
			logging.Err(err).Msg("Failed to close cursor store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enricher := enrich.NewClient(&cfg.Enrich)

	queue, err := initQueue(ctx, cfg, db, enricher)
	if err != nil {
		return fmt.Errorf("initialize warning queue: %w", err)
	}
	defer queue.Shutdown(context.Background())

	evaluator := rules.NewEvaluator(cfg.GitHub.DefaultBranches, cfg.GitHub.LargePushThreshold)
	feed := github.NewBreakerClient(&cfg.GitHub)
	poll := poller.New(feed, db, cursorStore, evaluator, queue.Publisher, &cfg.GitHub)
	backfill := analyzer.NewBackfill(db, queue.Publisher, &cfg.Analyzer)
	sweep := sweeper.New(db, &cfg.Sweeper)

	hub := streamer.NewHub(cfg.Streamer.Backlog)
	bridge := streamer.NewBridge(queue.Broadcast, hub)
	ndjson := streamer.NewNDJSONHandler(hub, cfg.Streamer.PingInterval)
	ws := streamer.NewWSHandler(hub)

	var queueHealth api.QueueHealth
	if queue.Server != nil {
		queueHealth = queue.Server
	}
	handler := api.NewHandler(db, cursorStore, queueHealth)
	router := api.NewRouter(cfg.Server, handler, ndjson, ws)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddIngestService(supervisor.NewRunnerService("poller", poll))
	tree.AddIngestService(supervisor.NewRunnerService("sweeper", sweep))

	if queue.Server != nil {
		tree.AddMessagingService(supervisor.NewBrokerService(queue.Server, 10*time.Second))
	}
	tree.AddMessagingService(supervisor.NewRunnerService("queue-router", queue.Router))
	tree.AddMessagingService(supervisor.NewRunnerService("analyzer-backfill", backfill))
	tree.AddMessagingService(supervisor.NewRunnerService("stream-hub", hub))
	tree.AddMessagingService(supervisor.NewRunnerService("broadcast-bridge", bridge))

	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	logging.Info().
		Str("addr", httpServer.Addr).
		Msg("Supervision tree starting")

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervision tree stopped unexpectedly")
		}
		cancel()
	}

	// Drain the tree's error channel so every child finishes stopping.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Service stopped with error")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range report {
			logging.Warn().
				Str("service", svc.Name).
				Msg("Service did not stop within the shutdown timeout")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
	return nil
}
