// Tests for the task ID codec and ordering.
package task

import "testing"

// TestParseIDRoundTrip verifies canonical encode/decode of task ids.
func TestParseIDRoundTrip(t *testing.T) {
	id, err := ParseID("002-001-sample")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if id.Priority != 2 || id.Sequence != 1 || id.Slug != "sample" {
		t.Fatalf("unexpected id fields: %+v", id)
	}
	if id.String() != "002-001-sample" {
		t.Fatalf("expected canonical form, got %q", id.String())
	}
}

// TestParseIDMultiWordSlug keeps hyphens inside the slug intact.
func TestParseIDMultiWordSlug(t *testing.T) {
	id, err := ParseID("001-042-fix-login-flow")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if id.Slug != "fix-login-flow" {
		t.Fatalf("expected full slug, got %q", id.Slug)
	}
}

// TestParseIDRejectsMalformedInput covers the malformed id cases.
func TestParseIDRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"002",
		"002-001",
		"abc-001-sample",
		"002-xyz-sample",
		"000-001-sample",
		"005-001-sample",
		"002-001-",
	}
	for _, raw := range cases {
		if _, err := ParseID(raw); err == nil {
			t.Fatalf("expected parse error for %q", raw)
		}
	}
}

// TestIDOrdering verifies priority, then sequence, then slug ordering.
func TestIDOrdering(t *testing.T) {
	a := ID{Priority: 1, Sequence: 9, Slug: "zeta"}
	b := ID{Priority: 2, Sequence: 1, Slug: "alpha"}
	if !a.Less(b) {
		t.Fatalf("priority 1 must sort before priority 2")
	}

	c := ID{Priority: 2, Sequence: 2, Slug: "alpha"}
	if !b.Less(c) {
		t.Fatalf("lower sequence must sort first within a priority class")
	}

	d := ID{Priority: 2, Sequence: 2, Slug: "beta"}
	if !c.Less(d) {
		t.Fatalf("equal priority and sequence must fall back to slug order")
	}
}

// TestWithPriority validates the priority-class range on rewrite.
func TestWithPriority(t *testing.T) {
	id := ID{Priority: 3, Sequence: 7, Slug: "sample"}
	rewritten, err := id.WithPriority(1)
	if err != nil {
		t.Fatalf("with priority: %v", err)
	}
	if rewritten.String() != "001-007-sample" {
		t.Fatalf("unexpected rewritten id %q", rewritten)
	}
	if _, err := id.WithPriority(0); err == nil {
		t.Fatalf("expected error for out-of-range priority")
	}
}
