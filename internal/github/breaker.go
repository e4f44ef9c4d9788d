// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
)

// BreakerClient wraps Client with a circuit breaker so a degraded or
// rate-limiting API stops consuming the request budget. Breaker timing
// uses real time; unit tests should exercise the wrapped client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*Page]
	name   string
}

// Ensure BreakerClient implements Feed
var _ Feed = (*BreakerClient)(nil)

// NewBreakerClient creates an events feed client with circuit breaker.
// The circuit opens after a 60% failure rate over at least 10 requests
// in a 1 minute window, and probes again after 2 minutes.
func NewBreakerClient(cfg *config.GitHubConfig) *BreakerClient {
	cbName := "github-events"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*Page](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},

		// Permanent feed errors mean the response arrived but was not
		// usable; they should not count toward tripping the circuit.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pe *PermanentError
			return errors.As(err, &pe)
		},
	})

	return &BreakerClient{
		client: NewClient(cfg),
		cb:     cb,
		name:   cbName,
	}
}

// FetchPage fetches one feed page through the circuit breaker.
// Rejections while the circuit is open surface as retryable errors so
// the poller backs off the same way it does for rate limiting.
func (bc *BreakerClient) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	page, err := bc.cb.Execute(func() (*Page, error) {
		return bc.client.FetchPage(ctx, pageURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			return nil, NewRetryableError(fmt.Errorf("feed circuit open: %w", err))
		}
		metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return page, nil
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
