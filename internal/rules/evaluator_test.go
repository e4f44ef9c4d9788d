// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package rules

import (
	"fmt"
	"testing"

	"github.com/marekvw/gitsentry/internal/models"
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator([]string{"main", "master"}, 20)
}

func makeEvent(t *testing.T, eventType, payload string) *models.Event {
	t.Helper()
	doc := fmt.Sprintf(`{
		"id": "100",
		"type": %q,
		"actor": {"id": 1, "login": "octocat"},
		"repo": {"id": 2, "name": "octocat/hello-world"},
		"payload": %s,
		"created_at": "2026-08-30T12:00:00Z"
	}`, eventType, payload)
	e, err := models.ParseEvent([]byte(doc))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	return e
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
		wantType  string
		wantFlag  bool
	}{
		{
			"default branch deleted",
			models.EventTypeDelete,
			`{"ref": "main", "ref_type": "branch"}`,
			models.WarningDefaultBranchDeleted, true,
		},
		{
			"feature branch deleted",
			models.EventTypeDelete,
			`{"ref": "feature/x", "ref_type": "branch"}`,
			"", false,
		},
		{
			"tag deleted",
			models.EventTypeDelete,
			`{"ref": "main", "ref_type": "tag"}`,
			"", false,
		},
		{
			"large push to default branch",
			models.EventTypePush,
			`{"ref": "refs/heads/main", "size": 20, "distinct_size": 18}`,
			models.WarningLargePushDefault, true,
		},
		{
			"push just below threshold",
			models.EventTypePush,
			`{"ref": "refs/heads/main", "size": 19, "distinct_size": 19}`,
			models.WarningPushDefault, true,
		},
		{
			"push to master",
			models.EventTypePush,
			`{"ref": "refs/heads/master", "size": 1, "distinct_size": 1}`,
			models.WarningPushDefault, true,
		},
		{
			"push to feature branch",
			models.EventTypePush,
			`{"ref": "refs/heads/feature/x", "size": 50, "distinct_size": 50}`,
			"", false,
		},
		{
			"push with bare ref",
			models.EventTypePush,
			`{"ref": "main", "size": 3, "distinct_size": 3}`,
			"", false,
		},
		{
			"repo made public",
			models.EventTypePublic,
			`{}`,
			models.WarningRepoMadePublic, true,
		},
		{
			"collaborator added",
			models.EventTypeMember,
			`{"action": "added", "member": {"login": "hubber"}}`,
			models.WarningCollaboratorAdded, true,
		},
		{
			"collaborator removed",
			models.EventTypeMember,
			`{"action": "removed", "member": {"login": "hubber"}}`,
			"", false,
		},
		{
			"unrelated event type",
			"WatchEvent",
			`{"action": "started"}`,
			"", false,
		},
	}

	e := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := makeEvent(t, tt.eventType, tt.payload)
			gotType, gotFlag := e.Evaluate(event)
			if gotFlag != tt.wantFlag || gotType != tt.wantType {
				t.Errorf("Evaluate() = (%q, %v), want (%q, %v)",
					gotType, gotFlag, tt.wantType, tt.wantFlag)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := newTestEvaluator()
	event := makeEvent(t, models.EventTypePush,
		`{"ref": "refs/heads/main", "size": 25, "distinct_size": 25}`)

	first, _ := e.Evaluate(event)
	for i := 0; i < 100; i++ {
		got, ok := e.Evaluate(event)
		if !ok || got != first {
			t.Fatalf("run %d: Evaluate() = (%q, %v), want stable (%q, true)", i, got, ok, first)
		}
	}
}

func TestEvaluateMalformedPayload(t *testing.T) {
	e := newTestEvaluator()
	event := makeEvent(t, models.EventTypePush, `"not an object"`)
	if warningType, ok := e.Evaluate(event); ok {
		t.Errorf("malformed payload flagged as %q", warningType)
	}
}

func TestEvaluateNilEvent(t *testing.T) {
	e := newTestEvaluator()
	if warningType, ok := e.Evaluate(nil); ok {
		t.Errorf("nil event flagged as %q", warningType)
	}
}

func TestLargePushOutranksPush(t *testing.T) {
	// Both rules match a 20-commit push to main; the higher-priority large
	// push rule must win.
	e := newTestEvaluator()
	event := makeEvent(t, models.EventTypePush,
		`{"ref": "refs/heads/main", "size": 20, "distinct_size": 20}`)

	got, ok := e.Evaluate(event)
	if !ok || got != models.WarningLargePushDefault {
		t.Errorf("Evaluate() = (%q, %v), want (%q, true)", got, ok, models.WarningLargePushDefault)
	}
}
