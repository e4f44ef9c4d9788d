// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package streamer

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/models"
	"github.com/marekvw/gitsentry/internal/warningqueue"
)

type fakeSource struct {
	ch chan *message.Message
}

func (f *fakeSource) SubscribeAll(context.Context) (<-chan *message.Message, error) {
	return f.ch, nil
}

func (f *fakeSource) Close() error { return nil }

func queueMessage(t *testing.T, wm *warningqueue.WarningMessage) *message.Message {
	t.Helper()
	data, err := warningqueue.SerializeMessage(wm)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return message.NewMessage(wm.WarningID, data)
}

func TestBridgeForwardsToHub(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	source := &fakeSource{ch: make(chan *message.Message, 4)}
	bridge := NewBridge(source, hub)
	go func() { _ = bridge.Run(ctx) }()

	ch, cancelSub := hub.Subscribe()
	defer cancelSub()

	source.ch <- queueMessage(t, &warningqueue.WarningMessage{
		WarningID:   "w-live",
		WarningType: models.WarningLargePushDefault,
		Payload:     json.RawMessage(`{"id":"77"}`),
	})

	select {
	case msg := <-ch:
		if msg.WarningID != "w-live" || msg.WarningType != models.WarningLargePushDefault {
			t.Errorf("unexpected frame: %+v", msg)
		}
		if msg.Analysis != nil {
			t.Error("flagged frame must not carry analysis")
		}
	case <-time.After(time.Second):
		t.Fatal("frame never reached the hub")
	}
}

func TestBridgeSkipsPoisonMessages(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	source := &fakeSource{ch: make(chan *message.Message, 4)}
	bridge := NewBridge(source, hub)
	go func() { _ = bridge.Run(ctx) }()

	ch, cancelSub := hub.Subscribe()
	defer cancelSub()

	poisoned := queueMessage(t, &warningqueue.WarningMessage{
		WarningID:   "w-poison",
		WarningType: models.WarningPushDefault,
		Payload:     json.RawMessage(`{}`),
	})
	poisoned.Metadata.Set(middleware.ReasonForPoisonedKey, "gave up")
	source.ch <- poisoned

	source.ch <- queueMessage(t, &warningqueue.WarningMessage{
		WarningID:   "w-clean",
		WarningType: models.WarningPushDefault,
		Payload:     json.RawMessage(`{}`),
	})

	select {
	case msg := <-ch:
		if msg.WarningID != "w-clean" {
			t.Errorf("poison frame leaked to clients: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("clean frame never arrived")
	}
}

func TestBridgeIgnoresGarbage(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	source := &fakeSource{ch: make(chan *message.Message, 4)}
	bridge := NewBridge(source, hub)
	go func() { _ = bridge.Run(ctx) }()

	ch, cancelSub := hub.Subscribe()
	defer cancelSub()

	source.ch <- message.NewMessage("bad", []byte("not json"))
	source.ch <- queueMessage(t, &warningqueue.WarningMessage{
		WarningID:   "w-after-garbage",
		WarningType: models.WarningPushDefault,
		Payload:     json.RawMessage(`{}`),
	})

	select {
	case msg := <-ch:
		if msg.WarningID != "w-after-garbage" {
			t.Errorf("unexpected frame: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("bridge stalled on garbage message")
	}
}
