// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marekvw/gitsentry/internal/logging"
)

// Runner is anything with a blocking, context-aware run loop. The poller,
// the queue router, the analyzer backfill, the sweeper, the stream hub,
// and the broadcast bridge all satisfy it.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService adapts a Runner to suture.Service under a stable name.
type RunnerService struct {
	name   string
	runner Runner
}

// NewRunnerService wraps runner as a supervised service.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{name: name, runner: runner}
}

// Serve implements suture.Service. Context cancellation is a normal stop,
// not a failure, so suture does not restart the service for it.
func (s *RunnerService) Serve(ctx context.Context) error {
	logging.Info().Str("service", s.name).Msg("Service starting")
	err := s.runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Str("service", s.name).Msg("Service stopped with error")
		return err
	}
	logging.Info().Str("service", s.name).Msg("Service stopped")
	return err
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *RunnerService) String() string {
	return s.name
}

// HTTPServer matches the *http.Server lifecycle methods the service needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service,
// translating between the blocking ListenAndServe pattern and suture's
// context-aware Serve.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService creates the wrapper. shutdownTimeout bounds how
// long active connections get to drain during graceful shutdown.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve implements suture.Service. http.ErrServerClosed is converted to
// nil since it is expected on shutdown.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already canceled, shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for logging.
func (h *HTTPServerService) String() string {
	return "http-server"
}

// Broker matches the embedded queue server lifecycle.
type Broker interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// BrokerService supervises an already-started embedded broker: it blocks
// until shutdown is requested, then stops the broker. If the broker dies
// underneath it, Serve returns an error so suture escalates.
type BrokerService struct {
	broker          Broker
	shutdownTimeout time.Duration
}

// NewBrokerService creates the wrapper around a running broker.
func NewBrokerService(broker Broker, shutdownTimeout time.Duration) *BrokerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BrokerService{
		broker:          broker,
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve implements suture.Service.
func (b *BrokerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
			defer cancel()

			if err := b.broker.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("broker shutdown failed: %w", err)
			}
			return ctx.Err()

		case <-ticker.C:
			if !b.broker.IsRunning() {
				return errors.New("embedded broker stopped unexpectedly")
			}
		}
	}
}

// String implements fmt.Stringer for logging.
func (b *BrokerService) String() string {
	return "queue-broker"
}
