// Tests for the pipeline phase enum.
package phase

import "testing"

// TestPhaseOrdering verifies the fixed pipeline order.
func TestPhaseOrdering(t *testing.T) {
	want := []string{"expand", "triage", "plan", "implement", "test", "docs", "review", "verify"}
	all := All()
	if len(all) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(all))
	}
	for i, p := range all {
		if p.String() != want[i] {
			t.Fatalf("phase %d: expected %q, got %q", i, want[i], p.String())
		}
		if p.Number() != i {
			t.Fatalf("phase %q: expected number %d, got %d", p, i, p.Number())
		}
	}
}

// TestPhaseNext verifies linear advancement with a terminal fixed point.
func TestPhaseNext(t *testing.T) {
	if PhaseExpand.Next() != PhaseTriage {
		t.Fatalf("expected expand -> triage, got %s", PhaseExpand.Next())
	}
	if PhaseReview.Next() != PhaseVerify {
		t.Fatalf("expected review -> verify, got %s", PhaseReview.Next())
	}
	if PhaseVerify.Next() != PhaseVerify {
		t.Fatalf("expected verify to be terminal, got %s", PhaseVerify.Next())
	}
	if !PhaseVerify.IsLast() {
		t.Fatalf("expected verify to be the last phase")
	}
	if PhaseDocs.IsLast() {
		t.Fatalf("docs must not be the last phase")
	}
}

// TestParsePhase resolves names back to enum values.
func TestParsePhase(t *testing.T) {
	parsed, err := ParsePhase(" implement ")
	if err != nil {
		t.Fatalf("parse phase: %v", err)
	}
	if parsed != PhaseImplement {
		t.Fatalf("expected implement, got %s", parsed)
	}

	if _, err := ParsePhase(""); err == nil {
		t.Fatalf("expected error for empty phase name")
	}
	if _, err := ParsePhase("compile"); err == nil {
		t.Fatalf("expected error for unknown phase name")
	}
}

// TestGatedPhases verifies gate requirements for implement and test only.
func TestGatedPhases(t *testing.T) {
	for _, p := range All() {
		gated := p == PhaseImplement || p == PhaseTest
		if p.Gated() != gated {
			t.Fatalf("phase %s: expected gated=%v", p, gated)
		}
	}
}
