// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

// Package rules implements the deterministic flag evaluator. Rules are
// checked in a fixed priority order and the first match wins, so a single
// event yields at most one warning type.
package rules

import (
	"strings"

	"github.com/marekvw/gitsentry/internal/models"
)

// Evaluator decides whether an event warrants a warning. It is pure: the
// decision depends only on the event document and the construction-time
// settings, never on external state.
type Evaluator struct {
	defaultBranches    map[string]struct{}
	largePushThreshold int

	rules []rule
}

type rule struct {
	name  string
	match func(*models.Event) (string, bool)
}

// NewEvaluator builds an evaluator. defaultBranches are the branch names
// treated as a repository's default branch; largePushThreshold is the commit
// count at or above which a default-branch push is escalated.
func NewEvaluator(defaultBranches []string, largePushThreshold int) *Evaluator {
	branches := make(map[string]struct{}, len(defaultBranches))
	for _, b := range defaultBranches {
		branches[b] = struct{}{}
	}
	if largePushThreshold < 1 {
		largePushThreshold = 1
	}

	e := &Evaluator{
		defaultBranches:    branches,
		largePushThreshold: largePushThreshold,
	}

	// Priority order. Branch deletion outranks pushes; the large-push rule
	// must run before the plain push rule or it would never fire.
	e.rules = []rule{
		{"default-branch-deleted", e.matchBranchDeleted},
		{"large-push-default-branch", e.matchLargePush},
		{"push-default-branch", e.matchPush},
		{"repo-made-public", e.matchMadePublic},
		{"collaborator-added", e.matchCollaboratorAdded},
	}
	return e
}

// Evaluate returns the warning type for the event and true, or ("", false)
// when no rule matches. Malformed payloads never flag: a rule that cannot
// decode its payload simply does not match.
func (e *Evaluator) Evaluate(event *models.Event) (string, bool) {
	if event == nil {
		return "", false
	}
	for _, r := range e.rules {
		if warningType, ok := r.match(event); ok {
			return warningType, true
		}
	}
	return "", false
}

func (e *Evaluator) matchBranchDeleted(event *models.Event) (string, bool) {
	if event.Type != models.EventTypeDelete {
		return "", false
	}
	p, err := event.DeletePayload()
	if err != nil {
		return "", false
	}
	if p.RefType != "branch" {
		return "", false
	}
	if !e.isDefaultBranch(p.Ref) {
		return "", false
	}
	return models.WarningDefaultBranchDeleted, true
}

func (e *Evaluator) matchLargePush(event *models.Event) (string, bool) {
	p, ok := e.defaultBranchPush(event)
	if !ok {
		return "", false
	}
	if p.Size < e.largePushThreshold {
		return "", false
	}
	return models.WarningLargePushDefault, true
}

func (e *Evaluator) matchPush(event *models.Event) (string, bool) {
	if _, ok := e.defaultBranchPush(event); !ok {
		return "", false
	}
	return models.WarningPushDefault, true
}

func (e *Evaluator) matchMadePublic(event *models.Event) (string, bool) {
	if event.Type != models.EventTypePublic {
		return "", false
	}
	return models.WarningRepoMadePublic, true
}

func (e *Evaluator) matchCollaboratorAdded(event *models.Event) (string, bool) {
	if event.Type != models.EventTypeMember {
		return "", false
	}
	p, err := event.MemberPayload()
	if err != nil {
		return "", false
	}
	if p.Action != "added" {
		return "", false
	}
	return models.WarningCollaboratorAdded, true
}

// defaultBranchPush decodes a push payload and reports whether it targets a
// default branch.
func (e *Evaluator) defaultBranchPush(event *models.Event) (*models.PushPayload, bool) {
	if event.Type != models.EventTypePush {
		return nil, false
	}
	p, err := event.PushPayload()
	if err != nil {
		return nil, false
	}
	branch, ok := strings.CutPrefix(p.Ref, "refs/heads/")
	if !ok {
		return nil, false
	}
	if !e.isDefaultBranch(branch) {
		return nil, false
	}
	return p, true
}

func (e *Evaluator) isDefaultBranch(branch string) bool {
	_, ok := e.defaultBranches[branch]
	return ok
}
