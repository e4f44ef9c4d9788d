// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package streamer

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/models"
)

func TestNDJSONStreamDeliversFrames(t *testing.T) {
	hub := NewHub(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(NewNDJSONHandler(hub, time.Minute))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if got := resp.Header.Get("Content-Type"); got != "application/x-ndjson" {
		t.Errorf("content type %q", got)
	}

	// Wait until the handler registered with the hub.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(streamMsg("w-stream"))

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() {
		t.Fatalf("no frame received: %v", scanner.Err())
	}

	var frame map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}

	for _, key := range []string{"payload", "analysis", "warning_id", "warning_type", "is_ping"} {
		if _, ok := frame[key]; !ok {
			t.Errorf("frame missing key %q: %s", key, scanner.Text())
		}
	}
	if frame["warning_id"] != "w-stream" {
		t.Errorf("warning_id %v", frame["warning_id"])
	}
	if frame["is_ping"] != false {
		t.Errorf("data frame marked as ping")
	}
}

func TestNDJSONStreamSendsPings(t *testing.T) {
	hub := NewHub(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(NewNDJSONHandler(hub, 50*time.Millisecond))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() {
		t.Fatalf("no ping received: %v", scanner.Err())
	}

	var frame models.StreamMessage
	if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
		t.Fatalf("ping is not JSON: %v", err)
	}
	if !frame.IsPing {
		t.Errorf("expected ping frame, got %s", scanner.Text())
	}
	if frame.WarningID != "" || frame.Analysis != nil {
		t.Errorf("ping frame carries data: %s", scanner.Text())
	}
}

func TestNDJSONStreamEndsOnHubShutdown(t *testing.T) {
	hub := NewHub(16)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(NewNDJSONHandler(hub, time.Minute))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("stream did not end after hub shutdown")
	}
}
