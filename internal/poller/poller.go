// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

/*
poller.go - Feed Polling Loop

The poller drives ingestion: it fetches the events feed newest-first
until it reaches the cursor, persists the buffered pages oldest-first,
evaluates flag rules on every new event, and advances the cursor one
page at a time. A crash mid-cycle re-processes at most the unpersisted
remainder; idempotent inserts and the duplicate-warning guard make the
replay harmless.
*/

package poller

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/cursor"
	"github.com/marekvw/gitsentry/internal/github"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
	"github.com/marekvw/gitsentry/internal/rules"
	"github.com/marekvw/gitsentry/internal/warningqueue"
)

// Store is the slice of the database the poller needs.
type Store interface {
	InsertEvent(ctx context.Context, event *models.Event) (bool, error)
	EventHasWarnings(ctx context.Context, eventID string) (bool, error)
	CreateWarning(ctx context.Context, warning *models.Warning, eventIDs []string) error
}

// Cursor tracks the newest fully processed event id.
type Cursor interface {
	Get() (cursor.State, error)
	Advance(eventID string) (bool, error)
}

// Publisher pushes flagged warnings onto the queue.
type Publisher interface {
	PublishWarning(ctx context.Context, wm *warningqueue.WarningMessage) error
}

// Poller polls the events feed and feeds the pipeline.
type Poller struct {
	feed      github.Feed
	store     Store
	cursor    Cursor
	evaluator *rules.Evaluator
	pub       Publisher
	cfg       config.GitHubConfig
}

// New creates a poller.
func New(feed github.Feed, store Store, cur Cursor, evaluator *rules.Evaluator, pub Publisher, cfg *config.GitHubConfig) *Poller {
	return &Poller{
		feed:      feed,
		store:     store,
		cursor:    cur,
		evaluator: evaluator,
		pub:       pub,
		cfg:       *cfg,
	}
}

// Run executes poll cycles until the context is canceled. Transient
// feed failures back off exponentially with jitter; after MaxRetries
// consecutive failures the backoff resets and polling continues, since
// the feed is expected to heal eventually.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0

	for {
		start := time.Now()
		hint, err := p.RunCycle(ctx)
		elapsed := time.Since(start)

		var wait time.Duration
		switch {
		case err == nil:
			failures = 0
			wait = p.cfg.PollInterval
			if hint > wait {
				wait = hint
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err
		case github.IsRetryable(err):
			failures++
			wait = p.backoff(failures)
			metrics.RecordPollCycle("error", elapsed)
			logging.Err(err).Int("consecutive_failures", failures).Dur("backoff", wait).Msg("Poll cycle failed, backing off")
			if failures >= p.cfg.MaxRetries {
				logging.Error().Int("failures", failures).Msg("Feed still failing after max retries, resetting backoff")
				failures = 0
			}
		default:
			// Permanent errors mean a broken response, not a broken
			// feed. Log and try again next interval.
			failures = 0
			wait = p.cfg.PollInterval
			metrics.RecordPollCycle("error", elapsed)
			logging.Err(err).Msg("Poll cycle failed permanently, skipping to next interval")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RunCycle performs one full poll cycle and returns the server's poll
// interval hint, if any.
func (p *Poller) RunCycle(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	state, err := p.cursor.Get()
	if err != nil {
		return 0, err
	}

	pages, hint, notModified, err := p.fetchPages(ctx, state.EventID)
	if err != nil {
		return hint, err
	}

	if notModified {
		metrics.RecordPollCycle("not_modified", time.Since(start))
		return hint, nil
	}

	// Pages arrive newest-first; persist oldest-first so the cursor
	// never skips an unpersisted event.
	ingested := 0
	flagged := 0
	for i := len(pages) - 1; i >= 0; i-- {
		n, f, err := p.persistPage(ctx, pages[i], state.EventID)
		ingested += n
		flagged += f
		if err != nil {
			return hint, err
		}
	}

	metrics.RecordPollCycle("ok", time.Since(start))
	logging.Info().
		Int("pages", len(pages)).
		Int("ingested", ingested).
		Int("flagged", flagged).
		Msg("Poll cycle finished")

	return hint, nil
}

// fetchPages buffers feed pages newest-first until it sees the cursor,
// runs out of pages, or hits the page cap.
func (p *Poller) fetchPages(ctx context.Context, cursorID string) ([]*github.Page, time.Duration, bool, error) {
	var pages []*github.Page
	var hint time.Duration

	pageURL := ""
	for len(pages) < p.cfg.MaxPages {
		page, err := p.feed.FetchPage(ctx, pageURL)
		if err != nil {
			return nil, hint, false, err
		}
		if page.PollInterval > 0 {
			hint = page.PollInterval
		}

		if page.NotModified {
			return nil, hint, true, nil
		}

		metrics.PollPagesFetched.Inc()
		pages = append(pages, page)

		if pageReachesCursor(page, cursorID) || page.NextURL == "" {
			break
		}
		pageURL = page.NextURL
	}

	return pages, hint, false, nil
}

// pageReachesCursor reports whether the page's oldest event is at or
// below the cursor, meaning older pages hold nothing new.
func pageReachesCursor(page *github.Page, cursorID string) bool {
	if cursorID == "" || len(page.Events) == 0 {
		return false
	}
	oldest := page.Events[len(page.Events)-1]
	return !cursor.IDLess(cursorID, oldest.ID)
}

// persistPage stores one page's events oldest-first, evaluates flag
// rules, and advances the cursor past the page.
func (p *Poller) persistPage(ctx context.Context, page *github.Page, cursorID string) (ingested, flagged int, err error) {
	newest := ""
	for i := len(page.Events) - 1; i >= 0; i-- {
		ev := page.Events[i]
		if cursorID != "" && !cursor.IDLess(cursorID, ev.ID) {
			continue // already processed in an earlier cycle
		}

		inserted, err := p.store.InsertEvent(ctx, ev)
		if err != nil {
			return ingested, flagged, err
		}
		if inserted {
			ingested++
			metrics.EventsIngested.WithLabelValues(ev.Type).Inc()
		} else {
			metrics.EventsDuplicate.Inc()
		}

		created, err := p.flagEvent(ctx, ev, inserted)
		if err != nil {
			return ingested, flagged, err
		}
		if created {
			flagged++
		}

		newest = ev.ID
	}

	if newest != "" {
		advanced, err := p.cursor.Advance(newest)
		if err != nil {
			return ingested, flagged, err
		}
		if advanced {
			metrics.CursorAdvances.Inc()
		}
	}

	return ingested, flagged, nil
}

// flagEvent evaluates the rules and, on a match, creates the warning
// and publishes it. The warning and its event link commit in one
// transaction before the publish; a lost publish is repaired by the
// analyzer backfill.
func (p *Poller) flagEvent(ctx context.Context, ev *models.Event, inserted bool) (bool, error) {
	warningType, matched := p.evaluator.Evaluate(ev)
	if !matched {
		return false, nil
	}

	if !inserted {
		// Replayed event: the warning likely exists from the earlier
		// pass. Creating a second one would duplicate alerts.
		has, err := p.store.EventHasWarnings(ctx, ev.ID)
		if err != nil {
			return false, err
		}
		if has {
			return false, nil
		}
	}

	warning := &models.Warning{
		ID:          uuid.NewString(),
		WarningType: warningType,
		CreatedAt:   time.Now().UTC(),
	}

	if err := p.store.CreateWarning(ctx, warning, []string{ev.ID}); err != nil {
		return false, err
	}

	metrics.WarningsFlagged.WithLabelValues(warningType).Inc()
	logging.Info().
		Str("warning_id", warning.ID).
		Str("warning_type", warningType).
		Str("event_id", ev.ID).
		Str("repo", ev.Repo.Name).
		Str("actor", ev.Actor.Login).
		Msg("Event flagged")

	wm := &warningqueue.WarningMessage{
		WarningID:   warning.ID,
		WarningType: warningType,
		Payload:     ev.Raw,
	}
	if err := p.pub.PublishWarning(ctx, wm); err != nil {
		// The warning is durable; the backfill loop re-publishes it
		// once it passes the grace period.
		logging.Err(err).Str("warning_id", warning.ID).Msg("Flagged publish failed, backfill will repair")
	}

	return true, nil
}

// backoff returns a jittered exponential delay for the nth consecutive
// failure.
func (p *Poller) backoff(failures int) time.Duration {
	d := p.cfg.BackoffInitial
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= p.cfg.BackoffMax {
			d = p.cfg.BackoffMax
			break
		}
	}
	// Up to 25% jitter spreads retries from concurrent deployments.
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
