// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/models"
)

type fakeDeadLetterStore struct {
	warningID string
	topic     string
	reason    string
	payload   []byte
	err       error
	calls     int
}

func (f *fakeDeadLetterStore) RecordDeadLetter(_ context.Context, warningID, topic, reason string, payload []byte) error {
	f.calls++
	f.warningID = warningID
	f.topic = topic
	f.reason = reason
	f.payload = payload
	return f.err
}

func poisonedMessage(t *testing.T) *message.Message {
	t.Helper()

	data, err := SerializeMessage(&WarningMessage{
		WarningID:   "w-dead",
		WarningType: models.WarningPushDefault,
		Payload:     json.RawMessage(`{"id":"1"}`),
	})
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	msg := message.NewMessage("uuid-1", data)
	msg.Metadata.Set(middleware.ReasonForPoisonedKey, "enrich call failed")
	msg.Metadata.Set(middleware.PoisonedTopicKey, TopicFlagged)
	return msg
}

func TestDLQConsumerRecords(t *testing.T) {
	store := &fakeDeadLetterStore{}
	consumer := NewDLQConsumer(store)

	if err := consumer.Handle(poisonedMessage(t)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if store.calls != 1 {
		t.Fatalf("expected 1 record call, got %d", store.calls)
	}
	if store.warningID != "w-dead" {
		t.Errorf("expected warning id from payload, got %q", store.warningID)
	}
	if store.topic != TopicFlagged {
		t.Errorf("expected original topic, got %q", store.topic)
	}
	if store.reason != "enrich call failed" {
		t.Errorf("expected poison reason, got %q", store.reason)
	}
}

func TestDLQConsumerAcksOnStoreFailure(t *testing.T) {
	store := &fakeDeadLetterStore{err: errors.New("db down")}
	consumer := NewDLQConsumer(store)

	if err := consumer.Handle(poisonedMessage(t)); err != nil {
		t.Errorf("store failure must not nack the poison message: %v", err)
	}
}

func TestDLQConsumerUndecodablePayload(t *testing.T) {
	store := &fakeDeadLetterStore{}
	consumer := NewDLQConsumer(store)

	msg := message.NewMessage("uuid-raw", []byte("not json"))
	msg.Metadata.Set(middleware.ReasonForPoisonedKey, "parse failure")

	if err := consumer.Handle(msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if store.warningID != "uuid-raw" {
		t.Errorf("expected fallback to message UUID, got %q", store.warningID)
	}
}
