// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package sweeper

import (
	"context"
	"time"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
)

// Store is the slice of the database the sweeper needs.
type Store interface {
	DeleteUnflaggedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically removes events that aged out without ever being
// flagged. Flagged events are kept indefinitely; their warnings
// reference them.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
}

// New creates a sweeper from config.
func New(store Store, cfg *config.SweeperConfig) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  cfg.Interval,
		retention: cfg.RetentionAge,
	}
}

// Run executes sweeps until the context is canceled. The first sweep
// happens after one full interval so startup is not penalized by a
// potentially large delete.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs one retention pass immediately.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	return s.store.DeleteUnflaggedEventsBefore(ctx, cutoff)
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	deleted, err := s.Sweep(ctx)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logging.Err(err).Msg("Retention sweep failed")
		return
	}

	metrics.EventsSwept.Add(float64(deleted))
	if deleted > 0 {
		logging.Info().Int64("deleted", deleted).Dur("took", time.Since(start)).Msg("Retention sweep finished")
	} else {
		logging.Debug().Msg("Retention sweep found nothing to delete")
	}
}
