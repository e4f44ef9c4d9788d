// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

// Package config loads and validates GitSentry configuration from layered
// sources: built-in defaults, an optional YAML file, then environment
// variables. Precedence is ENV > file > defaults.
package config

import (
	"time"
)

// Config is the root configuration for the server process.
type Config struct {
	GitHub   GitHubConfig   `koanf:"github"`
	Database DatabaseConfig `koanf:"database"`
	Cursor   CursorConfig   `koanf:"cursor"`
	NATS     NATSConfig     `koanf:"nats"`
	Analyzer AnalyzerConfig `koanf:"analyzer"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Streamer StreamerConfig `koanf:"streamer"`
	Sweeper  SweeperConfig  `koanf:"sweeper"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// GitHubConfig controls the events feed client and the poll cycle.
type GitHubConfig struct {
	// APIURL is the events feed endpoint.
	APIURL string `koanf:"api_url"`

	// Token is an optional personal access token. Unauthenticated requests
	// share a much smaller rate budget, so a token is strongly recommended.
	Token string `koanf:"token"`

	// PerPage is the page size requested from the feed (max 100).
	PerPage int `koanf:"per_page"`

	// MaxPages caps how many pages a single cycle may fetch. The public
	// feed never serves more than 300 events regardless.
	MaxPages int `koanf:"max_pages"`

	// PollInterval is the floor between poll cycles. The feed's
	// X-Poll-Interval response hint raises the effective interval.
	PollInterval time.Duration `koanf:"poll_interval"`

	// RequestTimeout bounds a single feed request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// BackoffInitial and BackoffMax bound the exponential backoff applied
	// after transient feed errors (403, 503, 5xx, network).
	BackoffInitial time.Duration `koanf:"backoff_initial"`
	BackoffMax     time.Duration `koanf:"backoff_max"`

	// MaxRetries is how many transient failures a cycle tolerates before
	// it is abandoned until the next tick.
	MaxRetries int `koanf:"max_retries"`

	// DefaultBranches are the branch names treated as a repository's
	// default branch by the flag rules.
	DefaultBranches []string `koanf:"default_branches"`

	// LargePushThreshold is the commit count at or above which a push to
	// the default branch is flagged as a large push.
	LargePushThreshold int `koanf:"large_push_threshold"`
}

// DatabaseConfig controls the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads for DuckDB; 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// CursorConfig controls the durable poll cursor store.
type CursorConfig struct {
	// Path is the Badger directory holding the cursor.
	Path string `koanf:"path"`
}

// NATSConfig controls the embedded JetStream server and the warning stream.
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	// StreamRetentionDays bounds how long warning messages stay replayable.
	StreamRetentionDays int `koanf:"stream_retention_days"`

	// Watermill router middleware settings.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// AnalyzerConfig controls the competing-consumer analysis workers.
type AnalyzerConfig struct {
	// QueueGroup and DurableName identify the shared consumer; every
	// analyzer instance joining the same group competes for messages.
	QueueGroup  string `koanf:"queue_group"`
	DurableName string `koanf:"durable_name"`

	// AckWait is the visibility timeout: an unacked message is redelivered
	// to another worker after this long.
	AckWait time.Duration `koanf:"ack_wait"`

	// MaxDeliver caps broker redeliveries of a message.
	MaxDeliver int `koanf:"max_deliver"`

	// BackfillInterval and BackfillGrace drive re-publication of warnings
	// that were flagged but never analyzed (lost publishes, cleared DLQ).
	BackfillInterval time.Duration `koanf:"backfill_interval"`
	BackfillGrace    time.Duration `koanf:"backfill_grace"`
	BackfillBatch    int           `koanf:"backfill_batch"`
}

// EnrichConfig controls the enrichment collaborator client.
type EnrichConfig struct {
	APIURL  string        `koanf:"api_url"`
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// StreamerConfig controls the live stream fan-out.
type StreamerConfig struct {
	// Backlog is the per-connection buffered message count; when full the
	// oldest buffered message is dropped first.
	Backlog int `koanf:"backlog"`

	// PingInterval is how often each connection receives a keepalive.
	PingInterval time.Duration `koanf:"ping_interval"`
}

// SweeperConfig controls retention cleanup of unflagged events.
type SweeperConfig struct {
	Interval time.Duration `koanf:"interval"`

	// RetentionAge is the minimum age before an event without warning
	// links becomes eligible for deletion.
	RetentionAge time.Duration `koanf:"retention_age"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DefaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and env vars.
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL:             "https://api.github.com/events",
			Token:              "",
			PerPage:            100,
			MaxPages:           10,
			PollInterval:       10 * time.Second,
			RequestTimeout:     15 * time.Second,
			BackoffInitial:     2 * time.Second,
			BackoffMax:         5 * time.Minute,
			MaxRetries:         5,
			DefaultBranches:    []string{"main", "master"},
			LargePushThreshold: 20,
		},
		Database: DatabaseConfig{
			Path:      "/data/gitsentry.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Cursor: CursorConfig{
			Path: "/data/cursor",
		},
		NATS: NATSConfig{
			URL:                        "nats://127.0.0.1:4222",
			EmbeddedServer:             true,
			StoreDir:                   "/data/nats/jetstream",
			MaxMemory:                  1 << 30,  // 1GB
			MaxStore:                   10 << 30, // 10GB
			StreamRetentionDays:        7,
			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterPoisonQueueTopic:     "warnings.poison",
			RouterCloseTimeout:         30 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			QueueGroup:       "analyzers",
			DurableName:      "analyzer",
			AckWait:          60 * time.Second,
			MaxDeliver:       3,
			BackfillInterval: 5 * time.Minute,
			BackfillGrace:    10 * time.Minute,
			BackfillBatch:    100,
		},
		Enrich: EnrichConfig{
			APIURL:  "https://api.openai.com/v1/chat/completions",
			APIKey:  "",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Streamer: StreamerConfig{
			Backlog:      256,
			PingInterval: 20 * time.Second,
		},
		Sweeper: SweeperConfig{
			Interval:     time.Hour,
			RetentionAge: 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
