// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package validation

import (
	"strings"
	"testing"
)

type searchParams struct {
	Query string `validate:"required,min=1,max=256"`
	Limit int    `validate:"min=1,max=500"`
}

func TestValidateStructPasses(t *testing.T) {
	if verr := ValidateStruct(&searchParams{Query: "force push", Limit: 50}); verr != nil {
		t.Fatalf("expected valid struct, got %v", verr)
	}
}

func TestValidateStructRequired(t *testing.T) {
	verr := ValidateStruct(&searchParams{Limit: 50})
	if verr == nil {
		t.Fatal("expected validation error for missing query")
	}
	fields := verr.Fields()
	if len(fields) != 1 {
		t.Fatalf("expected 1 field error, got %d", len(fields))
	}
	if fields[0].Field != "Query" || fields[0].Tag != "required" {
		t.Fatalf("unexpected field error: %+v", fields[0])
	}
	if !strings.Contains(verr.Error(), "Query is required") {
		t.Fatalf("unexpected message: %q", verr.Error())
	}
}

func TestValidateStructRangeMessages(t *testing.T) {
	verr := ValidateStruct(&searchParams{Query: "x", Limit: 10000})
	if verr == nil {
		t.Fatal("expected validation error for limit out of range")
	}
	if !strings.Contains(verr.Error(), "Limit must be at most 500") {
		t.Fatalf("unexpected message: %q", verr.Error())
	}
}

func TestValidateStructMultipleErrors(t *testing.T) {
	verr := ValidateStruct(&searchParams{Query: "", Limit: 0})
	if verr == nil {
		t.Fatal("expected validation errors")
	}
	if len(verr.Fields()) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(verr.Fields()))
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Fatal("expected the same validator instance")
	}
}
