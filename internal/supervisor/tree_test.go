// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// restartableService fails a fixed number of times before blocking, so
// restart behavior can be observed.
type restartableService struct {
	name      string
	failures  int32
	starts    atomic.Int32
	unblocked chan struct{}
}

func newRestartableService(name string, failures int32) *restartableService {
	return &restartableService{name: name, failures: failures, unblocked: make(chan struct{})}
}

func (s *restartableService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	close(s.unblocked)
	<-ctx.Done()
	return ctx.Err()
}

func (s *restartableService) String() string { return s.name }

func TestTreeDefaultsApplied(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})

	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("expected default FailureThreshold 5.0, got %f", tree.config.FailureThreshold)
	}
	if tree.config.FailureDecay != 30.0 {
		t.Errorf("expected default FailureDecay 30.0, got %f", tree.config.FailureDecay)
	}
	if tree.config.FailureBackoff != 15*time.Second {
		t.Errorf("expected default FailureBackoff 15s, got %v", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default ShutdownTimeout 10s, got %v", tree.config.ShutdownTimeout)
	}
}

func TestTreeStartsAndStopsServices(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  100 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	ingest := newRestartableService("ingest-svc", 0)
	messaging := newRestartableService("messaging-svc", 0)
	api := newRestartableService("api-svc", 0)
	tree.AddIngestService(ingest)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*restartableService{ingest, messaging, api} {
		select {
		case <-svc.unblocked:
		case <-time.After(2 * time.Second):
			t.Fatalf("service %s did not start", svc.name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected supervisor error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   50 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	svc := newRestartableService("flaky", 2)
	tree.AddMessagingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	select {
	case <-svc.unblocked:
	case <-time.After(5 * time.Second):
		t.Fatal("service was not restarted after failures")
	}
	if got := svc.starts.Load(); got != 3 {
		t.Fatalf("expected 3 starts (2 failures + 1 success), got %d", got)
	}

	cancel()
	<-errCh
}
