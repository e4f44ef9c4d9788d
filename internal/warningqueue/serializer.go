// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/models"
)

// WarningMessage is the wire format for every topic in the warning
// stream. Flagged messages carry the warning identity plus the raw
// triggering event document; analyzed messages add the analysis.
type WarningMessage struct {
	WarningID   string           `json:"warning_id"`
	WarningType string           `json:"warning_type"`
	Payload     json.RawMessage  `json:"payload"`
	Analysis    *models.Analysis `json:"analysis,omitempty"`
}

// Validate checks the message carries a routable warning identity.
func (m *WarningMessage) Validate() error {
	if m.WarningID == "" {
		return fmt.Errorf("warning message missing warning_id")
	}
	if m.WarningType == "" {
		return fmt.Errorf("warning message missing warning_type")
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("warning message missing payload")
	}
	if m.Analysis != nil {
		if err := m.Analysis.Validate(); err != nil {
			return fmt.Errorf("warning message analysis: %w", err)
		}
	}
	return nil
}

// StreamMessage converts the queue message into the client wire shape.
func (m *WarningMessage) StreamMessage() *models.StreamMessage {
	return &models.StreamMessage{
		Payload:     m.Payload,
		Analysis:    m.Analysis,
		WarningID:   m.WarningID,
		WarningType: m.WarningType,
	}
}

// Serializer handles message encoding/decoding for NATS messages.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts a message to JSON bytes.
func (s *Serializer) Marshal(msg *WarningMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("validate message: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	return data, nil
}

// Unmarshal converts JSON bytes to a message.
func (s *Serializer) Unmarshal(data []byte) (*WarningMessage, error) {
	var msg WarningMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("validate message: %w", err)
	}

	return &msg, nil
}

// SerializeMessage is a convenience function that marshals a message to JSON.
func SerializeMessage(msg *WarningMessage) ([]byte, error) {
	return NewSerializer().Marshal(msg)
}

// DeserializeMessage is a convenience function that unmarshals JSON to a message.
func DeserializeMessage(data []byte) (*WarningMessage, error) {
	return NewSerializer().Unmarshal(data)
}
