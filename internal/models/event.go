// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package models

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Event is a single entry from the GitHub public events feed.
//
// Raw holds the document exactly as received so that the store and the
// stream emit what GitHub sent, not a lossy re-serialization. The typed
// fields cover only what the flag rules and the search queries need.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     EventActor      `json:"actor"`
	Repo      EventRepo       `json:"repo"`
	Org       *EventOrg       `json:"org,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

type EventActor struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type EventRepo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type EventOrg struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Feed event types the flag rules care about.
const (
	EventTypePush   = "PushEvent"
	EventTypeDelete = "DeleteEvent"
	EventTypePublic = "PublicEvent"
	EventTypeMember = "MemberEvent"
)

// PushPayload is the subset of a PushEvent payload used by the rules.
// Size is the number of commits in the push.
type PushPayload struct {
	Ref          string `json:"ref"`
	Size         int    `json:"size"`
	DistinctSize int    `json:"distinct_size"`
}

// DeletePayload is the subset of a DeleteEvent payload used by the rules.
type DeletePayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}

// MemberPayload is the subset of a MemberEvent payload used by the rules.
type MemberPayload struct {
	Action string `json:"action"`
	Member struct {
		Login string `json:"login"`
	} `json:"member"`
}

// ParseEvent decodes a raw feed document, keeping the original bytes in Raw.
func ParseEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	e.Raw = append(json.RawMessage(nil), raw...)
	return &e, nil
}

// Validate checks the fields every downstream component depends on.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if len(e.Raw) == 0 {
		return fmt.Errorf("event raw document is required")
	}
	return nil
}

// PushPayload decodes the payload of a PushEvent.
func (e *Event) PushPayload() (*PushPayload, error) {
	if e.Type != EventTypePush {
		return nil, fmt.Errorf("event %s is %s, not %s", e.ID, e.Type, EventTypePush)
	}
	var p PushPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}
	return &p, nil
}

// DeletePayload decodes the payload of a DeleteEvent.
func (e *Event) DeletePayload() (*DeletePayload, error) {
	if e.Type != EventTypeDelete {
		return nil, fmt.Errorf("event %s is %s, not %s", e.ID, e.Type, EventTypeDelete)
	}
	var p DeletePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode delete payload: %w", err)
	}
	return &p, nil
}

// MemberPayload decodes the payload of a MemberEvent.
func (e *Event) MemberPayload() (*MemberPayload, error) {
	if e.Type != EventTypeMember {
		return nil, fmt.Errorf("event %s is %s, not %s", e.ID, e.Type, EventTypeMember)
	}
	var p MemberPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode member payload: %w", err)
	}
	return &p, nil
}
