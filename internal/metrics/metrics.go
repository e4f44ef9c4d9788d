// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Feed polling and cursor progress
// - Flag evaluation and warning creation
// - Queue publish/consume throughput and dead letters
// - Enrichment latency and failures
// - Live stream client connections
// - Database query performance (DuckDB)
// - API endpoint latency and throughput

var (
	// Poller Metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_poll_cycles_total",
			Help: "Total number of completed poll cycles",
		},
		[]string{"outcome"}, // "ok", "not_modified", "error"
	)

	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gitsentry_poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_poll_pages_fetched_total",
			Help: "Total number of feed pages fetched",
		},
	)

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_events_ingested_total",
			Help: "Total number of events persisted from the feed",
		},
		[]string{"event_type"},
	)

	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_events_duplicate_total",
			Help: "Total number of feed events skipped as already stored",
		},
	)

	CursorAdvances = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_cursor_advances_total",
			Help: "Total number of cursor position advances",
		},
	)

	// Warning Metrics
	WarningsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_warnings_flagged_total",
			Help: "Total number of warnings created by flag evaluation",
		},
		[]string{"warning_type"},
	)

	WarningsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_warnings_analyzed_total",
			Help: "Total number of warnings that completed enrichment",
		},
	)

	// Queue Metrics
	QueuePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_queue_publishes_total",
			Help: "Total number of messages published to the warning queue",
		},
		[]string{"topic"},
	)

	QueuePublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_queue_publish_errors_total",
			Help: "Total number of failed queue publishes",
		},
		[]string{"topic"},
	)

	QueueConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_queue_consumed_total",
			Help: "Total number of messages consumed from the warning queue",
		},
		[]string{"topic"},
	)

	DeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_dead_letters_total",
			Help: "Total number of messages routed to the poison queue",
		},
	)

	// Enrichment Metrics
	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gitsentry_enrich_duration_seconds",
			Help:    "Duration of enrichment calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	EnrichFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitsentry_enrich_failures_total",
			Help: "Total number of failed enrichment calls",
		},
		[]string{"reason"}, // "http", "status", "decode", "empty"
	)

	AnalyzerBackfilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_analyzer_backfilled_total",
			Help: "Total number of stale warnings re-published by backfill",
		},
	)

	// Streamer Metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitsentry_stream_clients",
			Help: "Current number of connected stream clients",
		},
	)

	StreamMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_stream_messages_sent_total",
			Help: "Total number of messages delivered to stream clients",
		},
	)

	StreamMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_stream_messages_dropped_total",
			Help: "Total number of messages dropped on slow stream clients",
		},
	)

	// Sweeper Metrics
	EventsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitsentry_events_swept_total",
			Help: "Total number of unflagged events removed by retention sweeps",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gitsentry_sweep_duration_seconds",
			Help:    "Duration of retention sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordDBQuery records a database query with duration and error status
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request with latency and status code
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
}

// RecordEnrichFailure records a failed enrichment call by reason
func RecordEnrichFailure(reason string) {
	EnrichFailures.WithLabelValues(reason).Inc()
}

// RecordPollCycle records a completed poll cycle with its outcome
func RecordPollCycle(outcome string, duration time.Duration) {
	PollCycles.WithLabelValues(outcome).Inc()
	PollCycleDuration.Observe(duration.Seconds())
}
