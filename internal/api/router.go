// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marekvw/gitsentry/internal/config"
)

// Router assembles the Chi route tree from the handler set and the
// stream endpoints.
type Router struct {
	handler    *Handler
	middleware *Middleware

	stream http.Handler
	ws     http.Handler
}

// NewRouter creates a router. stream and ws serve the NDJSON and
// WebSocket live feeds; either may be nil to leave the route unregistered.
func NewRouter(cfg config.ServerConfig, handler *Handler, stream, ws http.Handler) *Router {
	return &Router{
		handler:    handler,
		middleware: NewMiddleware(cfg),
		stream:     stream,
		ws:         ws,
	}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS()) // global so OPTIONS preflight is handled

	// Health probes get a permissive limit so monitors can poll freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Use(SecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// Query endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Get("/search", router.handler.Search)
		r.Get("/summaries", router.handler.Summaries)
		r.Get("/stats", router.handler.Stats)
	})

	// Live stream endpoints. Connections are long-lived, so only the
	// upgrade rate is limited.
	if router.stream != nil || router.ws != nil {
		r.Route("/api/v1/stream", func(r chi.Router) {
			r.Use(router.middleware.RateLimitStream())
			r.Use(PrometheusMetrics())

			if router.stream != nil {
				r.Handle("/", router.stream)
			}
			if router.ws != nil {
				r.Handle("/ws", router.ws)
			}
		})
	}

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
