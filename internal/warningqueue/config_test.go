// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"testing"
	"time"

	"github.com/marekvw/gitsentry/internal/config"
)

func TestDefaultStreamConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	sc := DefaultStreamConfig(&cfg.NATS)
	if sc.Name != StreamName {
		t.Errorf("unexpected stream name %q", sc.Name)
	}
	if len(sc.Subjects) != 1 || sc.Subjects[0] != "warnings.>" {
		t.Errorf("stream must cover the whole warning subject space, got %v", sc.Subjects)
	}
	wantAge := time.Duration(cfg.NATS.StreamRetentionDays) * 24 * time.Hour
	if sc.MaxAge != wantAge {
		t.Errorf("max age %v, want %v", sc.MaxAge, wantAge)
	}
}

func TestAnalyzerSubscriberConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	sc := AnalyzerSubscriberConfig(&cfg.NATS, &cfg.Analyzer)
	if sc.QueueGroup != cfg.Analyzer.QueueGroup {
		t.Errorf("queue group %q, want %q", sc.QueueGroup, cfg.Analyzer.QueueGroup)
	}
	if sc.DurableName != cfg.Analyzer.DurableName {
		t.Errorf("durable name %q, want %q", sc.DurableName, cfg.Analyzer.DurableName)
	}
	if sc.AckWaitTimeout != cfg.Analyzer.AckWait {
		t.Errorf("ack wait %v, want %v", sc.AckWaitTimeout, cfg.Analyzer.AckWait)
	}
	if sc.MaxDeliver != cfg.Analyzer.MaxDeliver {
		t.Errorf("max deliver %d, want %d", sc.MaxDeliver, cfg.Analyzer.MaxDeliver)
	}
	if sc.StreamName != StreamName {
		t.Errorf("subscriber must bind to the warning stream, got %q", sc.StreamName)
	}
}

func TestPoisonTopicInsideStreamSubjects(t *testing.T) {
	// The poison topic must be covered by the stream subject filter so
	// dead letters need no second stream.
	if got := TopicPoison; got[:len("warnings.")] != "warnings." {
		t.Errorf("poison topic %q escapes the warning subject space", got)
	}
}
