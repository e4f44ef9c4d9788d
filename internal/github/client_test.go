// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marekvw/gitsentry/internal/config"
)

func feedConfig(apiURL string) *config.GitHubConfig {
	return &config.GitHubConfig{
		APIURL:         apiURL,
		Token:          "test-token",
		PerPage:        50,
		RequestTimeout: 5 * time.Second,
	}
}

func eventDoc(id string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "PushEvent",
		"actor": {"id": 1, "login": "octocat"},
		"repo": {"id": 2, "name": "octocat/hello"},
		"payload": {"ref": "refs/heads/main", "size": 1, "distinct_size": 1},
		"created_at": "2026-08-30T12:00:00Z"
	}`, id)
}

func TestFetchPageFirstPage(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("X-Poll-Interval", "60")
		w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next", <%s?page=10>; rel="last"`, r.Host, r.Host))
		fmt.Fprintf(w, "[%s,%s]", eventDoc("100"), eventDoc("99"))
	}))
	defer srv.Close()

	c := NewClient(feedConfig(srv.URL))
	page, err := c.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if got := gotReq.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("expected bearer token header, got %q", got)
	}
	if got := gotReq.URL.Query().Get("per_page"); got != "50" {
		t.Errorf("expected per_page=50, got %q", got)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(page.Events))
	}
	if page.Events[0].ID != "100" || page.Events[1].ID != "99" {
		t.Errorf("expected feed order preserved, got %s then %s", page.Events[0].ID, page.Events[1].ID)
	}
	if page.ETag != `"abc123"` {
		t.Errorf("expected etag captured, got %q", page.ETag)
	}
	if page.PollInterval != 60*time.Second {
		t.Errorf("expected 60s poll interval, got %v", page.PollInterval)
	}
	if page.NextURL == "" {
		t.Error("expected next page URL from Link header")
	}
}

func TestFetchPageConditionalNotModified(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"abc123"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc123"`)
		fmt.Fprintf(w, "[%s]", eventDoc("1"))
	}))
	defer srv.Close()

	c := NewClient(feedConfig(srv.URL))

	first, err := c.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if first.NotModified {
		t.Fatal("first fetch should not report not-modified")
	}

	second, err := c.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("conditional fetch failed: %v", err)
	}
	if !second.NotModified {
		t.Error("expected not-modified on unchanged feed")
	}
	if len(second.Events) != 0 {
		t.Errorf("expected empty events on 304, got %d", len(second.Events))
	}
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
}

func TestFetchPageFollowsNextURLWithoutCondition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" {
			t.Error("follow-up page request must not be conditional")
		}
		fmt.Fprintf(w, "[%s]", eventDoc("42"))
	}))
	defer srv.Close()

	c := NewClient(feedConfig(srv.URL))
	c.etag = `"stale"`

	page, err := c.FetchPage(context.Background(), srv.URL+"?page=2")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != "42" {
		t.Errorf("unexpected page contents: %+v", page.Events)
	}
}

func TestFetchPageStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusForbidden, true},
		{"too many requests", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"not found", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(feedConfig(srv.URL))
			_, err := c.FetchPage(context.Background(), "")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("status %d: IsRetryable = %v, want %v", tt.status, IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestFetchPageMalformedBodyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"not":"an array"}`)
	}))
	defer srv.Close()

	c := NewClient(feedConfig(srv.URL))
	_, err := c.FetchPage(context.Background(), "")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if IsRetryable(err) {
		t.Error("undecodable body must not be retryable")
	}
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			"next and last",
			`<https://api.github.com/events?page=2>; rel="next", <https://api.github.com/events?page=10>; rel="last"`,
			"https://api.github.com/events?page=2",
		},
		{
			"last only",
			`<https://api.github.com/events?page=10>; rel="last"`,
			"",
		},
		{"empty", "", ""},
		{"garbage", "not a link header", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextLink(tt.header); got != tt.want {
				t.Errorf("nextLink(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestPollIntervalParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Poll-Interval", "not-a-number")
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	c := NewClient(feedConfig(srv.URL))
	page, err := c.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if page.PollInterval != 0 {
		t.Errorf("expected zero poll interval for bad header, got %v", page.PollInterval)
	}
}
