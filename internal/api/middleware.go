// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/logging"
	"github.com/marekvw/gitsentry/internal/metrics"
)

// Middleware provides Chi-compatible middleware factories configured
// from the server section of the config.
type Middleware struct {
	cfg  config.ServerConfig
	cors func(http.Handler) http.Handler
}

// NewMiddleware builds the middleware factory for the given server config.
func NewMiddleware(cfg config.ServerConfig) *Middleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	})

	return &Middleware{
		cfg:  cfg,
		cors: corsHandler,
	}
}

// CORS returns the CORS middleware built from the configured origins.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns an IP-keyed rate limiter using the configured
// request budget and window.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return m.rateLimit(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RateLimitHealth returns a permissive rate limiter for health probes so
// monitoring tools can poll frequently.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.rateLimit(1000, time.Minute)
}

// RateLimitStream returns a rate limiter for stream connection upgrades.
// Connections are long-lived, so the budget only bounds reconnect churn.
func (m *Middleware) RateLimitStream() func(http.Handler) http.Handler {
	return m.rateLimit(30, time.Minute)
}

func (m *Middleware) rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(requests, window, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// RequestID adds an X-Request-ID header and threads the ID plus a fresh
// correlation ID through the logging context.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithNewCorrelationID(ctx)

			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders adds response headers appropriate for a JSON API.
// Content-Security-Policy is omitted since no HTML is served.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrometheusMetrics records request duration and status for every route.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(ww.statusCode), time.Since(start))
		})
	}
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush preserves streaming support for wrapped handlers.
func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack preserves connection hijacking for the WebSocket upgrade.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
