// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

/*
analyzer.go - Warning Enrichment Worker

The analyzer consumes flagged warnings from the durable queue, asks the
enrichment model for an analysis, persists it, and re-publishes the
warning on the analyzed topic. Instances share a queue group; each
message is processed by exactly one worker at a time, and an unacked
message is redelivered after the ack wait.
*/

package analyzer

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/marekvw/gitsentry/internal/enrich"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
	"github.com/marekvw/gitsentry/internal/warningqueue"
)

// Store is the slice of the database the analyzer needs.
type Store interface {
	GetWarning(ctx context.Context, id string) (*models.Warning, error)
	EventsForWarning(ctx context.Context, warningID string) ([]*models.Event, error)
	SetWarningAnalysis(ctx context.Context, id string, analysis *models.Analysis) (bool, error)
}

// Publisher re-publishes warnings onto the queue.
type Publisher interface {
	PublishWarning(ctx context.Context, wm *warningqueue.WarningMessage) error
}

// Analyzer processes flagged warnings into analyzed ones.
type Analyzer struct {
	store    Store
	enricher enrich.Analyzer
	pub      Publisher
}

// New creates an analyzer worker.
func New(store Store, enricher enrich.Analyzer, pub Publisher) *Analyzer {
	return &Analyzer{
		store:    store,
		enricher: enricher,
		pub:      pub,
	}
}

// Register attaches the analyzer to the router as the flagged topic's
// queue consumer.
func (a *Analyzer) Register(router *warningqueue.Router, subscriber message.Subscriber) {
	router.AddConsumerHandler(
		"warning_analyzer",
		warningqueue.TopicFlagged,
		subscriber,
		a.Handle,
	)
}

// Handle processes one flagged warning message.
//
// The handler is idempotent against redelivery: the persisted
// has_been_analyzed flag is the source of truth, and the conditional
// update guarantees the first completed analysis wins. A redelivered
// message for an already-analyzed warning acks without side effects.
// Returning an error nacks the message into the retry middleware;
// exhausted messages land on the poison topic.
func (a *Analyzer) Handle(msg *message.Message) error {
	ctx := msg.Context()

	wm, err := warningqueue.DeserializeMessage(msg.Payload)
	if err != nil {
		// Undecodable messages can never succeed; let retries exhaust
		// quickly into the poison topic with the reason attached.
		return fmt.Errorf("bad warning message: %w", err)
	}

	metrics.QueueConsumed.WithLabelValues(warningqueue.TopicFlagged).Inc()

	warning, err := a.store.GetWarning(ctx, wm.WarningID)
	if err != nil {
		return fmt.Errorf("load warning %s: %w", wm.WarningID, err)
	}

	if warning.HasBeenAnalyzed {
		// Redelivery of a finished warning. The publish below makes the
		// analyzed message exactly-once-ish: if the previous delivery
		// persisted the analysis but crashed before publishing, this one
		// repairs it, and broker-side dedup absorbs the common case
		// where the message already went out.
		wm.Analysis = warning.Analysis()
		if err := a.pub.PublishWarning(ctx, wm); err != nil {
			return fmt.Errorf("re-publish analyzed warning %s: %w", warning.ID, err)
		}
		logging.Debug().Str("warning_id", warning.ID).Msg("Warning already analyzed, acking redelivery")
		return nil
	}

	events, err := a.store.EventsForWarning(ctx, warning.ID)
	if err != nil {
		return fmt.Errorf("load events for warning %s: %w", warning.ID, err)
	}

	analysis, err := a.enricher.Analyze(ctx, warning.WarningType, events)
	if err != nil {
		return fmt.Errorf("enrich warning %s: %w", warning.ID, err)
	}

	updated, err := a.store.SetWarningAnalysis(ctx, warning.ID, analysis)
	if err != nil {
		return fmt.Errorf("persist analysis for warning %s: %w", warning.ID, err)
	}
	if !updated {
		// A competing worker finished first. Its publish covers the
		// analyzed topic, so this delivery just acks.
		logging.Debug().Str("warning_id", warning.ID).Msg("Analysis raced and lost, acking")
		return nil
	}

	metrics.WarningsAnalyzed.Inc()

	wm.Analysis = analysis
	if err := a.pub.PublishWarning(ctx, wm); err != nil {
		// The analysis is durable, only the publish is lost. The retry
		// re-runs the handler, which repairs the publish through the
		// already-analyzed path above.
		return fmt.Errorf("publish analyzed warning %s: %w", warning.ID, err)
	}

	logging.Info().
		Str("warning_id", warning.ID).
		Str("warning_type", warning.WarningType).
		Int("events", len(events)).
		Msg("Warning analyzed")

	return nil
}
