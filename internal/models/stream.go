// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package models

import (
	json "github.com/goccy/go-json"
)

// StreamMessage is the wire shape emitted on the live stream and returned by
// the search and summaries endpoints. All fields are always present; a ping
// carries is_ping=true and zero values everywhere else.
type StreamMessage struct {
	Payload     json.RawMessage `json:"payload"`
	Analysis    *Analysis       `json:"analysis"`
	WarningID   string          `json:"warning_id"`
	WarningType string          `json:"warning_type"`
	IsPing      bool            `json:"is_ping"`
}

// PingMessage returns the keepalive frame for long-lived stream connections.
func PingMessage() StreamMessage {
	return StreamMessage{IsPing: true}
}
