package engine

import (
	"errors"
	"testing"

	"github.com/castmark/persona-engine/internal/model"
)

func TestValidate_ForbiddenTopic(t *testing.T) {
	p := model.Persona{Name: "Harry", ForbiddenTopics: []string{"Voldemort"}}

	err := Validate(p, "Well, VOLDEMORT once said...")
	var v *model.ConsistencyViolation
	if !errors.As(err, &v) {
		t.Fatalf("expected ConsistencyViolation, got %v", err)
	}
	if v.Rule != "forbidden_topic" {
		t.Errorf("rule: %q", v.Rule)
	}

	if err := Validate(p, "He Who Must Not Be Named is off limits."); err != nil {
		t.Errorf("clean reply flagged: %v", err)
	}
}

func TestValidate_HardConstraintContradiction(t *testing.T) {
	p := model.Persona{Name: "Harry", HardConstraints: []string{"house=Gryffindor"}}

	// Mentions the subject without the required value.
	err := Validate(p, "My house is Slytherin, obviously.")
	var v *model.ConsistencyViolation
	if !errors.As(err, &v) {
		t.Fatalf("expected ConsistencyViolation, got %v", err)
	}
	if v.Rule != "hard_constraint" || v.Detail != "house=Gryffindor" {
		t.Errorf("unexpected violation: %+v", v)
	}

	// States the required value: fine.
	if err := Validate(p, "My house is Gryffindor."); err != nil {
		t.Errorf("consistent reply flagged: %v", err)
	}
	// Never mentions the subject: fine.
	if err := Validate(p, "I play seeker."); err != nil {
		t.Errorf("unrelated reply flagged: %v", err)
	}
	// Subject only as part of a longer word: not a mention.
	if err := Validate(p, "Every household has its quirks."); err != nil {
		t.Errorf("substring false positive: %v", err)
	}
}

func TestValidate_FreeFormConstraintSkipped(t *testing.T) {
	p := model.Persona{Name: "Harry", HardConstraints: []string{"orphaned as a baby"}}
	if err := Validate(p, "My parents are alive and well."); err != nil {
		t.Errorf("free-form facts are not string-checkable: %v", err)
	}
}

func TestValidate_EmptyPersona(t *testing.T) {
	if err := Validate(model.Persona{Name: "X"}, "anything at all"); err != nil {
		t.Errorf("no rules, no violations: %v", err)
	}
}
