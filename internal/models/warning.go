// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package models

import (
	"fmt"
	"time"
)

// Warning type strings are part of the external contract: they appear on the
// live stream and in search results. Never rename a published value.
const (
	WarningDefaultBranchDeleted = "default branch deleted"
	WarningLargePushDefault     = "large push to default branch"
	WarningPushDefault          = "push to default branch"
	WarningRepoMadePublic       = "repository visibility changed to public"
	WarningCollaboratorAdded    = "new collaborator added"
)

// Analysis is the enrichment result attached to a warning. Each field is a
// list of short, human-readable statements.
type Analysis struct {
	RootCause []string `json:"root_cause"`
	Impact    []string `json:"impact"`
	NextSteps []string `json:"next_steps"`
}

// Validate rejects empty analyses; the enrichment collaborator occasionally
// returns well-formed JSON with no content, which must not be persisted.
func (a *Analysis) Validate() error {
	if a == nil {
		return fmt.Errorf("analysis is nil")
	}
	if len(a.RootCause) == 0 && len(a.Impact) == 0 && len(a.NextSteps) == 0 {
		return fmt.Errorf("analysis has no content")
	}
	return nil
}

// Warning is a flagged condition derived from one or more events.
// HasBeenAnalyzed flips exactly once, from false to true, when the analyzer
// commits its result.
type Warning struct {
	ID              string     `json:"id"`
	WarningType     string     `json:"warning_type"`
	RootCause       []string   `json:"root_cause,omitempty"`
	Impact          []string   `json:"impact,omitempty"`
	NextSteps       []string   `json:"next_steps,omitempty"`
	HasBeenAnalyzed bool       `json:"has_been_analyzed"`
	CreatedAt       time.Time  `json:"created_at"`
	AnalyzedAt      *time.Time `json:"analyzed_at,omitempty"`
}

// Analysis returns the warning's analysis, or nil if it has not been
// analyzed yet.
func (w *Warning) Analysis() *Analysis {
	if !w.HasBeenAnalyzed {
		return nil
	}
	return &Analysis{
		RootCause: w.RootCause,
		Impact:    w.Impact,
		NextSteps: w.NextSteps,
	}
}

// Validate checks the fields required before a warning may be persisted.
func (w *Warning) Validate() error {
	if w == nil {
		return fmt.Errorf("warning is nil")
	}
	if w.ID == "" {
		return fmt.Errorf("warning id is required")
	}
	if w.WarningType == "" {
		return fmt.Errorf("warning type is required")
	}
	return nil
}
