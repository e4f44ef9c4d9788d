// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := NewSlogLogger()
	slogger.Info("service started", "supervisor", "root")

	out := buf.String()
	if !strings.Contains(out, "service started") {
		t.Errorf("message not bridged to zerolog: %q", out)
	}
	if !strings.Contains(out, `"supervisor":"root"`) {
		t.Errorf("attribute not bridged: %q", out)
	}
}

func TestSlogBridgeGroups(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := NewSlogLogger().WithGroup("suture").With("service", "poller")
	slogger.Warn("service failed")

	out := buf.String()
	if !strings.Contains(out, `"suture.service":"poller"`) {
		t.Errorf("grouped attribute not prefixed: %q", out)
	}
}
