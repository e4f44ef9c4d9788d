// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

/*
client.go - Warning Enrichment Client

This file implements a client for an OpenAI-compatible chat completions
endpoint. Given a warning and its triggering events it asks the model
for root causes, impact, and next steps, and parses the structured
answer into an Analysis.
*/

package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/marekvw/gitsentry/internal/config"
	"github.com/marekvw/gitsentry/internal/metrics"
	"github.com/marekvw/gitsentry/internal/models"
)

// Analyzer produces an analysis for a flagged warning.
type Analyzer interface {
	Analyze(ctx context.Context, warningType string, events []*models.Event) (*models.Analysis, error)
}

// Ensure Client implements Analyzer
var _ Analyzer = (*Client)(nil)

// Client calls an OpenAI-compatible chat completions API.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates an enrichment client from config.
func NewClient(cfg *config.EnrichConfig) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// chatRequest is the chat completions request body
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

// chatResponse is the subset of the completions response we read
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a security analyst reviewing suspicious GitHub activity.
Given a warning type and the raw event documents that triggered it, respond with a JSON
object containing exactly three keys, each a non-empty array of short strings:
"root_cause": plausible explanations for the activity,
"impact": concrete consequences if the activity is malicious or accidental,
"next_steps": actions a repository administrator should take now.
Respond with JSON only.`

// Analyze asks the model to explain a warning. The returned error is
// retryable for transport, server, and malformed-answer failures; the
// caller's retry middleware decides how often to try again.
func (c *Client) Analyze(ctx context.Context, warningType string, events []*models.Event) (*models.Analysis, error) {
	start := time.Now()
	analysis, err := c.analyze(ctx, warningType, events)
	metrics.EnrichDuration.Observe(time.Since(start).Seconds())
	return analysis, err
}

func (c *Client) analyze(ctx context.Context, warningType string, events []*models.Event) (*models.Analysis, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(warningType, events)},
		},
		ResponseFormat: &responseFmt{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal enrich request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create enrich request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordEnrichFailure("http")
		return nil, fmt.Errorf("enrich call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordEnrichFailure("status")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("enrich endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordEnrichFailure("http")
		return nil, fmt.Errorf("enrich body read failed: %w", err)
	}

	analysis, err := parseAnalysis(body)
	if err != nil {
		metrics.RecordEnrichFailure("decode")
		return nil, err
	}

	if err := analysis.Validate(); err != nil {
		metrics.RecordEnrichFailure("empty")
		return nil, fmt.Errorf("enrich answer incomplete: %w", err)
	}

	return analysis, nil
}

// buildPrompt renders the user message: warning type plus the raw
// documents of every linked event, oldest first.
func buildPrompt(warningType string, events []*models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Warning type: %s\n\nTriggering events (%d):\n", warningType, len(events))
	for i, ev := range events {
		fmt.Fprintf(&b, "\nEvent %d:\n", i+1)
		if len(ev.Raw) > 0 {
			b.Write(ev.Raw)
		} else {
			fmt.Fprintf(&b, "id=%s type=%s repo=%s actor=%s", ev.ID, ev.Type, ev.Repo.Name, ev.Actor.Login)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseAnalysis extracts the Analysis from a completions response.
// Models occasionally wrap JSON in a code fence despite instructions;
// strip it before decoding.
func parseAnalysis(body []byte) (*models.Analysis, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode enrich response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("enrich response has no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var analysis models.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis content: %w", err)
	}

	return &analysis, nil
}
