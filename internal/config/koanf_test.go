// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Ensure no stray config file or env overrides are picked up.
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GitHub.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.GitHub.PollInterval)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())
	t.Setenv("GITHUB_TOKEN", "ghp_testtoken")
	t.Setenv("GITHUB_POLL_INTERVAL", "30s")
	t.Setenv("GITHUB_DEFAULT_BRANCHES", "main, trunk ,release")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GitHub.Token != "ghp_testtoken" {
		t.Errorf("Token = %q", cfg.GitHub.Token)
	}
	if cfg.GitHub.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.GitHub.PollInterval)
	}
	want := []string{"main", "trunk", "release"}
	if len(cfg.GitHub.DefaultBranches) != len(want) {
		t.Fatalf("DefaultBranches = %v, want %v", cfg.GitHub.DefaultBranches, want)
	}
	for i, b := range want {
		if cfg.GitHub.DefaultBranches[i] != b {
			t.Errorf("DefaultBranches[%d] = %q, want %q", i, cfg.GitHub.DefaultBranches[i], b)
		}
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Enrich.APIKey != "sk-test" {
		t.Errorf("Enrich.APIKey = %q", cfg.Enrich.APIKey)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
github:
  large_push_threshold: 50
streamer:
  backlog: 32
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GitHub.LargePushThreshold != 50 {
		t.Errorf("LargePushThreshold = %d, want 50", cfg.GitHub.LargePushThreshold)
	}
	if cfg.Streamer.Backlog != 32 {
		t.Errorf("Backlog = %d, want 32", cfg.Streamer.Backlog)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Chdir(dir)
	t.Setenv("HTTP_PORT", "7500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7500 {
		t.Errorf("Port = %d, want env override 7500", cfg.Server.Port)
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	if got := envTransformFunc("RANDOM_HOST_VARIABLE"); got != "" {
		t.Errorf("envTransformFunc(RANDOM_HOST_VARIABLE) = %q, want empty", got)
	}
}
