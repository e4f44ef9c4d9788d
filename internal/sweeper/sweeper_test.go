// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marekvw/gitsentry/internal/config"
)

type fakeStore struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakeStore) DeleteUnflaggedEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	store := &fakeStore{deleted: 42}
	s := New(store, &config.SweeperConfig{Interval: time.Hour, RetentionAge: 24 * time.Hour})

	before := time.Now().UTC().Add(-24 * time.Hour)
	deleted, err := s.Sweep(context.Background())
	after := time.Now().UTC().Add(-24 * time.Hour)

	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if deleted != 42 {
		t.Errorf("deleted %d, want 42", deleted)
	}
	if store.cutoff.Before(before) || store.cutoff.After(after) {
		t.Errorf("cutoff %v outside [%v, %v]", store.cutoff, before, after)
	}
}

func TestRunSweepsOnInterval(t *testing.T) {
	store := &fakeStore{}
	s := New(store, &config.SweeperConfig{Interval: 20 * time.Millisecond, RetentionAge: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("run returned %v", err)
	}
	if store.calls < 2 {
		t.Errorf("expected repeated sweeps, got %d", store.calls)
	}
}

func TestRunSurvivesStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("db locked")}
	s := New(store, &config.SweeperConfig{Interval: 20 * time.Millisecond, RetentionAge: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx)
	if store.calls < 2 {
		t.Errorf("sweeper must keep running after a failed sweep, got %d calls", store.calls)
	}
}
