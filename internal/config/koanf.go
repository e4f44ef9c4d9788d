// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gitsentry/config.yaml",
	"/etc/gitsentry/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variable names map to koanf paths via an explicit table:
	// GITHUB_TOKEN -> github.token, HTTP_PORT -> server.port.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the paths parsed as comma-separated slices when they
// arrive as strings from the environment.
var sliceConfigPaths = []string{
	"github.default_branches",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice when it came from YAML or defaults.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment state cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// GitHub feed mappings
		"github_api_url":              "github.api_url",
		"github_token":                "github.token",
		"github_per_page":             "github.per_page",
		"github_max_pages":            "github.max_pages",
		"github_poll_interval":        "github.poll_interval",
		"github_request_timeout":      "github.request_timeout",
		"github_backoff_initial":      "github.backoff_initial",
		"github_backoff_max":          "github.backoff_max",
		"github_max_retries":          "github.max_retries",
		"github_default_branches":     "github.default_branches",
		"github_large_push_threshold": "github.large_push_threshold",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Cursor store mappings
		"cursor_path": "cursor.path",

		// NATS mappings
		"nats_url":                   "nats.url",
		"nats_embedded":              "nats.embedded_server",
		"nats_store_dir":             "nats.store_dir",
		"nats_max_memory":            "nats.max_memory",
		"nats_max_store":             "nats.max_store",
		"nats_retention_days":        "nats.stream_retention_days",
		"nats_router_retry_count":    "nats.router_retry_count",
		"nats_router_retry_interval": "nats.router_retry_initial_interval",
		"nats_router_poison_topic":   "nats.router_poison_queue_topic",
		"nats_router_close_timeout":  "nats.router_close_timeout",

		// Analyzer mappings
		"analyzer_queue_group":       "analyzer.queue_group",
		"analyzer_durable_name":      "analyzer.durable_name",
		"analyzer_ack_wait":          "analyzer.ack_wait",
		"analyzer_max_deliver":       "analyzer.max_deliver",
		"analyzer_backfill_interval": "analyzer.backfill_interval",
		"analyzer_backfill_grace":    "analyzer.backfill_grace",
		"analyzer_backfill_batch":    "analyzer.backfill_batch",

		// Enrichment mappings
		"enrich_api_url": "enrich.api_url",
		"enrich_api_key": "enrich.api_key",
		"openai_api_key": "enrich.api_key",
		"enrich_model":   "enrich.model",
		"enrich_timeout": "enrich.timeout",

		// Streamer mappings
		"stream_backlog":       "streamer.backlog",
		"stream_ping_interval": "streamer.ping_interval",

		// Sweeper mappings
		"sweep_interval":  "sweeper.interval",
		"sweep_retention": "sweeper.retention_age",

		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
