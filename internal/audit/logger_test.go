// Tests for audit log formatting and persistence.
package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestLogger builds an audit logger with a fixed clock.
func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	root := t.TempDir()
	logger, err := NewLogger(root, os.Stderr)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return logger, filepath.Join(root, localStateDirName, auditLogFileName)
}

// TestLogTransitionFormatsLogfmt verifies field order and content.
func TestLogTransitionFormatsLogfmt(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogTransition("002-001-sample", "w1", "todo", "doing"); err != nil {
		t.Fatalf("log transition: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	want := "ts=2026-03-14T12:00:00Z task_id=002-001-sample worker=w1 event=task.transition from=todo to=doing"
	if line != want {
		t.Fatalf("unexpected audit line:\n got %q\nwant %q", line, want)
	}
}

// TestLogAppends keeps prior entries intact.
func TestLogAppends(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogLock(EventLockAcquire, "002-001-sample", "w1"); err != nil {
		t.Fatalf("log acquire: %v", err)
	}
	if err := logger.LogPhaseAttempt("002-001-sample", "w1", "implement", "claude", 1); err != nil {
		t.Fatalf("log attempt: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "event=lock.acquire") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "phase=implement") || !strings.Contains(lines[1], "attempt=1") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

// TestLogQuotesValuesWithSpaces applies logfmt quoting.
func TestLogQuotesValuesWithSpaces(t *testing.T) {
	logger, path := newTestLogger(t)

	err := logger.Log(Entry{
		TaskID: "002-001-sample",
		Worker: "w1",
		Event:  EventPhaseExhausted,
		Fields: []Field{{Key: "reason", Value: `gate failed: "make test"`}},
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), `reason="gate failed: \"make test\""`) {
		t.Fatalf("expected quoted value, got %q", string(data))
	}
}

// TestLogRejectsIncompleteEntries requires task, worker, and event.
func TestLogRejectsIncompleteEntries(t *testing.T) {
	logger, _ := newTestLogger(t)

	if err := logger.Log(Entry{Worker: "w1", Event: EventTaskCreate}); err == nil {
		t.Fatalf("expected error for missing task id")
	}
	if err := logger.Log(Entry{TaskID: "002-001-sample", Event: EventTaskCreate}); err == nil {
		t.Fatalf("expected error for missing worker")
	}
	if err := logger.Log(Entry{TaskID: "002-001-sample", Worker: "w1"}); err == nil {
		t.Fatalf("expected error for missing event")
	}
	if err := logger.LogTransition("002-001-sample", "w1", "", "doing"); err == nil {
		t.Fatalf("expected error for missing from state")
	}
}
