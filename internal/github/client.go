// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

/*
client.go - GitHub Events API Client

This file implements a REST client for the GitHub public events feed.
It handles conditional requests (ETag), Link-header pagination, and the
X-Poll-Interval hint returned by the API.

API Reference: https://docs.github.com/en/rest/activity/events
*/

package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/models"
)

// Feed defines the interface for fetching pages from the events API.
// Both Client and BreakerClient implement this interface.
type Feed interface {
	FetchPage(ctx context.Context, pageURL string) (*Page, error)
}

// Ensure Client implements Feed
var _ Feed = (*Client)(nil)

// Page is one page of the events feed together with the pagination and
// polling metadata the API returned alongside it.
type Page struct {
	Events []*models.Event

	// NextURL is the rel="next" target from the Link header, or empty
	// when this is the last page.
	NextURL string

	// ETag is the entity tag of the first page, used for conditional
	// requests on the next poll cycle.
	ETag string

	// PollInterval is the server-suggested minimum poll interval, zero
	// when the X-Poll-Interval header was absent.
	PollInterval time.Duration

	// NotModified is true when the server answered 304 to a conditional
	// request. Events is empty in that case.
	NotModified bool
}

// Client fetches pages from the GitHub events API
type Client struct {
	apiURL     string
	token      string
	perPage    int
	etag       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new events feed client
//
// The client performs unauthenticated requests when cfg.Token is empty,
// which GitHub rate-limits far more aggressively. The built-in limiter
// keeps request pacing below the documented ceiling either way.
func NewClient(cfg *config.GitHubConfig) *Client {
	return &Client{
		apiURL:  strings.TrimSuffix(cfg.APIURL, "/"),
		token:   cfg.Token,
		perPage: cfg.PerPage,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		// GitHub allows 5000 core requests/hour authenticated; stay
		// well under it even with MaxPages fetched every cycle.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// FetchPage fetches one page of the events feed. An empty pageURL fetches
// the first page with a conditional request against the stored ETag; a
// non-empty pageURL follows a Link rel="next" target verbatim.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	firstPage := pageURL == ""
	if firstPage {
		pageURL = fmt.Sprintf("%s?per_page=%d", c.apiURL, c.perPage)
	}

	resp, err := c.doRequest(ctx, pageURL, firstPage)
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("events request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if firstPage && resp.StatusCode == http.StatusNotModified {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &Page{
			NotModified:  true,
			ETag:         c.etag,
			PollInterval: pollInterval(resp),
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("events body read failed: %w", err))
	}

	events, err := parseEventsPage(body)
	if err != nil {
		return nil, NewPermanentError(fmt.Errorf("events page decode failed: %w", err))
	}

	page := &Page{
		Events:       events,
		NextURL:      nextLink(resp.Header.Get("Link")),
		PollInterval: pollInterval(resp),
	}

	if firstPage {
		if etag := resp.Header.Get("ETag"); etag != "" {
			c.etag = etag
			page.ETag = etag
		}
	}

	return page, nil
}

// doRequest performs an HTTP GET against the events API
func (c *Client) doRequest(ctx context.Context, fullURL string, conditional bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "gitsentry")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if conditional && c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}

	return c.httpClient.Do(req)
}

// classifyStatus maps non-200 responses onto the retry taxonomy.
// Rate limiting (403/429) and server-side failures are transient; other
// client errors will not heal on retry.
func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return NewRetryableError(fmt.Errorf("events rate limited: status %d: %s", resp.StatusCode, msg))
	case resp.StatusCode >= 500:
		return NewRetryableError(fmt.Errorf("events server error: status %d: %s", resp.StatusCode, msg))
	default:
		return NewPermanentError(fmt.Errorf("events request rejected: status %d: %s", resp.StatusCode, msg))
	}
}

// parseEventsPage decodes a page body into events, keeping the raw bytes
// of each element so downstream storage sees the document unmodified.
func parseEventsPage(body []byte) ([]*models.Event, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, err
	}

	events := make([]*models.Event, 0, len(docs))
	for _, doc := range docs {
		ev, err := models.ParseEvent(doc)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// nextLink extracts the rel="next" target from a Link header.
// Header shape: <https://...&page=2>; rel="next", <https://...>; rel="last"
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		target := strings.TrimSpace(section[0])
		target = strings.TrimPrefix(target, "<")
		target = strings.TrimSuffix(target, ">")
		return target
	}
	return ""
}

// pollInterval reads the X-Poll-Interval hint, zero when absent
func pollInterval(resp *http.Response) time.Duration {
	raw := resp.Header.Get("X-Poll-Interval")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
