// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package analyzer

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
	"github.com/marekvw/gitsentry/internal/warningqueue"
)

// BackfillStore is the slice of the database the backfill loop needs.
type BackfillStore interface {
	ListUnanalyzedWarningsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Warning, error)
	EventsForWarning(ctx context.Context, warningID string) ([]*models.Event, error)
}

// Backfill periodically re-publishes warnings that were flagged but
// never analyzed. This covers publishes lost before reaching the broker
// and warnings whose messages expired or were dead-lettered and later
// resolved. The grace period keeps in-flight warnings out of scope.
type Backfill struct {
	store    BackfillStore
	pub      Publisher
	interval time.Duration
	grace    time.Duration
	batch    int
}

// NewBackfill creates a backfill loop from config.
func NewBackfill(store BackfillStore, pub Publisher, cfg *config.AnalyzerConfig) *Backfill {
	return &Backfill{
		store:    store,
		pub:      pub,
		interval: cfg.BackfillInterval,
		grace:    cfg.BackfillGrace,
		batch:    cfg.BackfillBatch,
	}
}

// Run executes backfill sweeps until the context is canceled.
func (b *Backfill) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.sweep(ctx); err != nil {
				logging.Err(err).Msg("Backfill sweep failed")
			}
		}
	}
}

// sweep re-publishes one batch of stale unanalyzed warnings.
func (b *Backfill) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-b.grace)

	warnings, err := b.store.ListUnanalyzedWarningsBefore(ctx, cutoff, b.batch)
	if err != nil {
		return err
	}
	if len(warnings) == 0 {
		return nil
	}

	republished := 0
	for _, w := range warnings {
		if err := b.republish(ctx, w); err != nil {
			logging.Err(err).Str("warning_id", w.ID).Msg("Backfill republish failed")
			continue
		}
		republished++
	}

	logging.Info().
		Int("stale", len(warnings)).
		Int("republished", republished).
		Time("cutoff", cutoff).
		Msg("Backfill sweep finished")

	return nil
}

func (b *Backfill) republish(ctx context.Context, w *models.Warning) error {
	events, err := b.store.EventsForWarning(ctx, w.ID)
	if err != nil {
		return err
	}

	var payload json.RawMessage
	if len(events) > 0 && len(events[0].Raw) > 0 {
		payload = events[0].Raw
	} else {
		// The linked event was swept or stored without its document;
		// publish a minimal payload so the message stays routable.
		payload = json.RawMessage(`{}`)
	}

	wm := &warningqueue.WarningMessage{
		WarningID:   w.ID,
		WarningType: w.WarningType,
		Payload:     payload,
	}

	if err := b.pub.PublishWarning(ctx, wm); err != nil {
		return err
	}

	metrics.AnalyzerBackfilled.Inc()
	return nil
}
