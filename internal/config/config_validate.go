// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateAnalyzer(); err != nil {
		return err
	}
	if err := c.validateEnrich(); err != nil {
		return err
	}
	if err := c.validateStreamer(); err != nil {
		return err
	}
	if err := c.validateSweeper(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

const (
	feedMaxPerPage = 100
	feedMaxPages   = 30
	minPollFloor   = time.Second
)

func (c *Config) validateGitHub() error {
	if c.GitHub.APIURL == "" {
		return fmt.Errorf("GITHUB_API_URL is required")
	}
	if err := validateHTTPURL(c.GitHub.APIURL, "GITHUB_API_URL"); err != nil {
		return err
	}
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > feedMaxPerPage {
		return fmt.Errorf("GITHUB_PER_PAGE must be between 1 and %d", feedMaxPerPage)
	}
	if c.GitHub.MaxPages < 1 || c.GitHub.MaxPages > feedMaxPages {
		return fmt.Errorf("GITHUB_MAX_PAGES must be between 1 and %d", feedMaxPages)
	}
	if c.GitHub.PollInterval < minPollFloor {
		return fmt.Errorf("GITHUB_POLL_INTERVAL must be at least %s", minPollFloor)
	}
	if c.GitHub.BackoffInitial <= 0 || c.GitHub.BackoffMax < c.GitHub.BackoffInitial {
		return fmt.Errorf("GITHUB_BACKOFF_MAX must be >= GITHUB_BACKOFF_INITIAL, both positive")
	}
	if c.GitHub.MaxRetries < 0 {
		return fmt.Errorf("GITHUB_MAX_RETRIES must not be negative")
	}
	if len(c.GitHub.DefaultBranches) == 0 {
		return fmt.Errorf("GITHUB_DEFAULT_BRANCHES must name at least one branch")
	}
	if c.GitHub.LargePushThreshold < 1 {
		return fmt.Errorf("GITHUB_LARGE_PUSH_THRESHOLD must be at least 1")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

const (
	natsMinMemory    = 64 * 1024 * 1024  // 64MB
	natsMinStore     = 100 * 1024 * 1024 // 100MB
	natsMinRetention = 1
	natsMaxRetention = 365
)

func (c *Config) validateNATS() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("NATS_URL must use the nats:// or tls:// scheme")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if c.NATS.MaxMemory < natsMinMemory {
		return fmt.Errorf("NATS_MAX_MEMORY must be at least %d bytes", natsMinMemory)
	}
	if c.NATS.MaxStore < natsMinStore {
		return fmt.Errorf("NATS_MAX_STORE must be at least %d bytes", natsMinStore)
	}
	if c.NATS.StreamRetentionDays < natsMinRetention || c.NATS.StreamRetentionDays > natsMaxRetention {
		return fmt.Errorf("NATS_RETENTION_DAYS must be between %d and %d", natsMinRetention, natsMaxRetention)
	}
	if c.NATS.RouterRetryCount < 0 {
		return fmt.Errorf("NATS_ROUTER_RETRY_COUNT must not be negative")
	}
	if c.NATS.RouterPoisonQueueTopic == "" {
		return fmt.Errorf("NATS_ROUTER_POISON_TOPIC is required")
	}
	return nil
}

func (c *Config) validateAnalyzer() error {
	if c.Analyzer.QueueGroup == "" || c.Analyzer.DurableName == "" {
		return fmt.Errorf("ANALYZER_QUEUE_GROUP and ANALYZER_DURABLE_NAME are required")
	}
	if c.Analyzer.AckWait < time.Second {
		return fmt.Errorf("ANALYZER_ACK_WAIT must be at least 1s")
	}
	if c.Analyzer.MaxDeliver < 1 {
		return fmt.Errorf("ANALYZER_MAX_DELIVER must be at least 1")
	}
	if c.Analyzer.BackfillInterval <= 0 || c.Analyzer.BackfillGrace <= 0 {
		return fmt.Errorf("ANALYZER_BACKFILL_INTERVAL and ANALYZER_BACKFILL_GRACE must be positive")
	}
	if c.Analyzer.BackfillBatch < 1 {
		return fmt.Errorf("ANALYZER_BACKFILL_BATCH must be at least 1")
	}
	return nil
}

func (c *Config) validateEnrich() error {
	if c.Enrich.APIURL == "" {
		return fmt.Errorf("ENRICH_API_URL is required")
	}
	if err := validateHTTPURL(c.Enrich.APIURL, "ENRICH_API_URL"); err != nil {
		return err
	}
	if c.Enrich.Model == "" {
		return fmt.Errorf("ENRICH_MODEL is required")
	}
	if c.Enrich.Timeout <= 0 {
		return fmt.Errorf("ENRICH_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateStreamer() error {
	if c.Streamer.Backlog < 1 {
		return fmt.Errorf("STREAM_BACKLOG must be at least 1")
	}
	if c.Streamer.PingInterval < time.Second {
		return fmt.Errorf("STREAM_PING_INTERVAL must be at least 1s")
	}
	return nil
}

func (c *Config) validateSweeper() error {
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Sweeper.RetentionAge <= 0 {
		return fmt.Errorf("SWEEP_RETENTION must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use the http or https scheme", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
