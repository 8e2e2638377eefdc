// Tests for task record frontmatter encoding and decoding.
package task

import (
	"strings"
	"testing"
	"time"
)

// TestRecordRoundTrip verifies header fields and body survive encode/decode.
func TestRecordRoundTrip(t *testing.T) {
	id := ID{Priority: 2, Sequence: 1, Slug: "sample"}
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	record := Record{
		ID: id,
		Meta: Meta{
			State:     StateTodo,
			Priority:  2,
			CreatedAt: created,
			UpdatedAt: created,
			BlockedBy: []string{"001-001-base"},
			Log:       []string{"2026-03-14T09:30:00Z created"},
		},
		Body: "# Sample\n\nDo the thing.\n",
	}

	encoded, err := EncodeRecord(record)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if !strings.HasPrefix(string(encoded), "---\n") {
		t.Fatalf("expected frontmatter fence, got %q", encoded[:8])
	}

	decoded, err := DecodeRecord(id, encoded)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if decoded.Meta.State != StateTodo {
		t.Fatalf("expected todo state, got %q", decoded.Meta.State)
	}
	if decoded.Meta.Priority != 2 {
		t.Fatalf("expected priority 2, got %d", decoded.Meta.Priority)
	}
	if len(decoded.Meta.BlockedBy) != 1 || decoded.Meta.BlockedBy[0] != "001-001-base" {
		t.Fatalf("unexpected blocked_by: %v", decoded.Meta.BlockedBy)
	}
	if decoded.Body != record.Body {
		t.Fatalf("body mismatch: %q vs %q", decoded.Body, record.Body)
	}
}

// TestDecodeRecordRejectsMissingFences flags records without frontmatter.
func TestDecodeRecordRejectsMissingFences(t *testing.T) {
	id := ID{Priority: 1, Sequence: 1, Slug: "sample"}
	if _, err := DecodeRecord(id, []byte("just a body\n")); err == nil {
		t.Fatalf("expected error for missing open fence")
	}
	if _, err := DecodeRecord(id, []byte("---\nstate: todo\n")); err == nil {
		t.Fatalf("expected error for missing close fence")
	}
}

// TestAssignmentHelpers covers assign and clear behavior.
func TestAssignmentHelpers(t *testing.T) {
	record := Record{ID: ID{Priority: 1, Sequence: 1, Slug: "sample"}}
	if record.Assigned() {
		t.Fatalf("fresh record must not be assigned")
	}

	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	record.Assign("w1", at)
	if !record.Assigned() {
		t.Fatalf("expected record to be assigned")
	}
	if record.Meta.AssignedAt == nil || !record.Meta.AssignedAt.Equal(at) {
		t.Fatalf("unexpected assigned_at: %v", record.Meta.AssignedAt)
	}

	record.ClearAssignment()
	if record.Assigned() || record.Meta.AssignedAt != nil {
		t.Fatalf("expected assignment cleared")
	}
}

// TestAppendLog formats entries with an RFC3339 timestamp prefix.
func TestAppendLog(t *testing.T) {
	record := Record{ID: ID{Priority: 1, Sequence: 1, Slug: "sample"}}
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	record.AppendLog(at, "  picked up  ")
	if len(record.Meta.Log) != 1 {
		t.Fatalf("expected one log entry, got %d", len(record.Meta.Log))
	}
	if record.Meta.Log[0] != "2026-03-14T10:00:00Z picked up" {
		t.Fatalf("unexpected log entry %q", record.Meta.Log[0])
	}
}
