// Tests for lifecycle state transition guards.
package task

import "testing"

// TestAllowedTransitions enumerates the legal lifecycle moves.
func TestAllowedTransitions(t *testing.T) {
	allowed := [][2]State{
		{StateBlocked, StateTodo},
		{StateTodo, StateDoing},
		{StateTodo, StateBlocked},
		{StateDoing, StateDone},
		{StateDoing, StateTodo},
	}
	for _, pair := range allowed {
		if !IsValidTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}
}

// TestRejectedTransitions covers the forbidden lifecycle moves.
func TestRejectedTransitions(t *testing.T) {
	rejected := [][2]State{
		{StateTodo, StateDone},
		{StateDone, StateTodo},
		{StateDone, StateDoing},
		{StateBlocked, StateDoing},
		{StateBlocked, StateDone},
		{"", StateTodo},
		{StateTodo, ""},
	}
	for _, pair := range rejected {
		if IsValidTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be rejected", pair[0], pair[1])
		}
	}
	if err := ValidateTransition(StateTodo, StateDone); err == nil {
		t.Fatalf("expected validation error for todo -> done")
	}
}

// TestParseState resolves container names and rejects unknown values.
func TestParseState(t *testing.T) {
	for _, state := range States() {
		parsed, err := ParseState(string(state))
		if err != nil {
			t.Fatalf("parse state %q: %v", state, err)
		}
		if parsed != state {
			t.Fatalf("expected %q, got %q", state, parsed)
		}
	}
	if _, err := ParseState("archived"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}
