// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"time"

	"github.com/marekvw/gitsentry/internal/config"
)

// Topic layout inside the warning stream. The poison topic lives in the
// same subject space so dead letters need no second stream.
const (
	StreamName = "WARNINGS"

	TopicFlagged  = "warnings.flagged"
	TopicAnalyzed = "warnings.analyzed"
	TopicPoison   = "warnings.poison"
)

// streamSubjects covers every topic above
var streamSubjects = []string{"warnings.>"}

// ServerConfig holds settings for the embedded NATS server.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// StreamConfig holds JetStream stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

// PublisherConfig holds settings for the resilient publisher.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool
}

// SubscriberConfig holds settings for durable queue consumption.
type SubscriberConfig struct {
	URL              string
	StreamName       string
	QueueGroup       string
	DurableName      string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
}

// DefaultServerConfig derives embedded server settings from the app config.
func DefaultServerConfig(cfg *config.NATSConfig) *ServerConfig {
	return &ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}
}

// DefaultStreamConfig derives stream settings from the app config.
func DefaultStreamConfig(cfg *config.NATSConfig) *StreamConfig {
	return &StreamConfig{
		Name:     StreamName,
		Subjects: streamSubjects,
		MaxAge:   time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour,
		// Window for broker-side Nats-Msg-Id deduplication. Re-published
		// backfill messages land outside it on purpose.
		DuplicateWindow: 2 * time.Minute,
	}
}

// DefaultPublisherConfig derives publisher settings from the app config.
func DefaultPublisherConfig(cfg *config.NATSConfig) *PublisherConfig {
	return &PublisherConfig{
		URL:              cfg.URL,
		MaxReconnects:    -1, // Retry forever
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// AnalyzerSubscriberConfig derives the durable competing-consumer
// settings used by the analyzer workers.
func AnalyzerSubscriberConfig(natsCfg *config.NATSConfig, anaCfg *config.AnalyzerConfig) *SubscriberConfig {
	return &SubscriberConfig{
		URL:              natsCfg.URL,
		StreamName:       StreamName,
		QueueGroup:       anaCfg.QueueGroup,
		DurableName:      anaCfg.DurableName,
		SubscribersCount: 1,
		AckWaitTimeout:   anaCfg.AckWait,
		MaxDeliver:       anaCfg.MaxDeliver,
		MaxAckPending:    256,
		CloseTimeout:     natsCfg.RouterCloseTimeout,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}
