// Package audit provides append-only audit logging for doyaken runs.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// localStateDirName is the relative path for transient doyaken state.
	localStateDirName = ".doyaken/local-state"
	// auditLogFileName is the filename used for audit logging.
	auditLogFileName = "audit.log"
	// auditLogFileMode defines the permissions for the audit log file.
	auditLogFileMode = 0o644
	// auditLogDirMode defines the permissions for the audit log directory.
	auditLogDirMode = 0o755
)

const (
	// EventTaskCreate records task creation.
	EventTaskCreate = "task.create"
	// EventTaskTransition records task lifecycle transitions.
	EventTaskTransition = "task.transition"
	// EventLockAcquire records lock acquisition.
	EventLockAcquire = "lock.acquire"
	// EventLockRelease records lock release.
	EventLockRelease = "lock.release"
	// EventLockReclaim records a stale lock takeover.
	EventLockReclaim = "lock.reclaim"
	// EventPhaseAttempt records one agent invocation for a phase.
	EventPhaseAttempt = "phase.attempt"
	// EventPhaseComplete records phase completion with its score.
	EventPhaseComplete = "phase.complete"
	// EventPhaseExhausted records a phase that ran out of retries.
	EventPhaseExhausted = "phase.exhausted"
	// EventOrphanResume records an orphaned task being resumed.
	EventOrphanResume = "orphan.resume"
	// EventOrphanDecline records an orphaned task returned to todo.
	EventOrphanDecline = "orphan.decline"
	// EventCircuitOpen records the circuit breaker halting the run.
	EventCircuitOpen = "circuit.open"
)

// Logger appends audit entries to the project audit log.
type Logger struct {
	path     string
	warnings io.Writer
	now      func() time.Time
	mu       sync.Mutex
}

// Field represents a logfmt key/value pair.
type Field struct {
	Key   string
	Value string
}

// Entry captures the required audit log fields and any optional fields.
type Entry struct {
	TaskID string
	Worker string
	Event  string
	Fields []Field
}

// NewLogger builds an audit logger rooted at the provided project root.
func NewLogger(projectRoot string, warnings io.Writer) (*Logger, error) {
	if projectRoot == "" {
		return nil, errors.New("project root is required")
	}
	if warnings == nil {
		warnings = os.Stderr
	}
	return &Logger{
		path:     filepath.Join(projectRoot, localStateDirName, auditLogFileName),
		warnings: warnings,
		now:      time.Now,
	}, nil
}

// Log writes a generic audit entry to the log file.
func (logger *Logger) Log(entry Entry) error {
	if logger == nil {
		return errors.New("audit logger is nil")
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()

	line, err := logger.formatEntry(entry)
	if err != nil {
		logger.warnf("audit log entry rejected: %v", err)
		return err
	}
	if err := logger.appendLine(line); err != nil {
		logger.warnf("audit log write failed for %s: %v", logger.path, err)
		return err
	}
	return nil
}

// LogTransition records a task lifecycle state transition.
func (logger *Logger) LogTransition(taskID string, worker string, from string, to string) error {
	if from == "" || to == "" {
		return fmt.Errorf("task transition requires from and to states")
	}
	return logger.Log(Entry{
		TaskID: taskID,
		Worker: worker,
		Event:  EventTaskTransition,
		Fields: []Field{
			{Key: "from", Value: from},
			{Key: "to", Value: to},
		},
	})
}

// LogLock records a lock lifecycle event.
func (logger *Logger) LogLock(event string, taskID string, worker string) error {
	return logger.Log(Entry{TaskID: taskID, Worker: worker, Event: event})
}

// LogPhaseAttempt records one agent invocation for a phase.
func (logger *Logger) LogPhaseAttempt(taskID string, worker string, phase string, agent string, attempt int) error {
	return logger.Log(Entry{
		TaskID: taskID,
		Worker: worker,
		Event:  EventPhaseAttempt,
		Fields: []Field{
			{Key: "phase", Value: phase},
			{Key: "agent", Value: agent},
			{Key: "attempt", Value: strconv.Itoa(attempt)},
		},
	})
}

// LogPhaseComplete records phase completion with its confidence score.
func (logger *Logger) LogPhaseComplete(taskID string, worker string, phase string, score int) error {
	return logger.Log(Entry{
		TaskID: taskID,
		Worker: worker,
		Event:  EventPhaseComplete,
		Fields: []Field{
			{Key: "phase", Value: phase},
			{Key: "score", Value: strconv.Itoa(score)},
		},
	})
}

// LogPhaseExhausted records a phase that exhausted its retry budget.
func (logger *Logger) LogPhaseExhausted(taskID string, worker string, phase string, attempts int) error {
	return logger.Log(Entry{
		TaskID: taskID,
		Worker: worker,
		Event:  EventPhaseExhausted,
		Fields: []Field{
			{Key: "phase", Value: phase},
			{Key: "attempts", Value: strconv.Itoa(attempts)},
		},
	})
}

// LogCircuitOpen records the circuit breaker halting the run.
func (logger *Logger) LogCircuitOpen(taskID string, worker string, failures int) error {
	return logger.Log(Entry{
		TaskID: taskID,
		Worker: worker,
		Event:  EventCircuitOpen,
		Fields: []Field{
			{Key: "consecutive_failures", Value: strconv.Itoa(failures)},
		},
	})
}

// formatEntry renders an audit entry in logfmt-style order.
func (logger *Logger) formatEntry(entry Entry) (string, error) {
	if entry.TaskID == "" {
		return "", errors.New("task id is required")
	}
	if entry.Worker == "" {
		return "", errors.New("worker is required")
	}
	if entry.Event == "" {
		return "", errors.New("event is required")
	}
	now := logger.now
	if now == nil {
		now = time.Now
	}

	ts := now().UTC().Format(time.RFC3339)
	fields := []string{
		formatField("ts", ts),
		formatField("task_id", entry.TaskID),
		formatField("worker", entry.Worker),
		formatField("event", entry.Event),
	}
	for _, field := range entry.Fields {
		if field.Value == "" {
			continue
		}
		if field.Key == "" {
			return "", errors.New("field key is required")
		}
		fields = append(fields, formatField(field.Key, field.Value))
	}
	return strings.Join(fields, " "), nil
}

// formatField encodes a logfmt key/value pair.
func formatField(key string, value string) string {
	encoded := sanitizeValue(value)
	if needsQuoting(encoded) {
		return fmt.Sprintf(`%s="%s"`, key, escapeLogfmt(encoded))
	}
	return fmt.Sprintf("%s=%s", key, encoded)
}

// sanitizeValue ensures values stay single-line.
func sanitizeValue(value string) string {
	value = strings.ReplaceAll(value, "\n", `\n`)
	return strings.ReplaceAll(value, "\r", `\r`)
}

// needsQuoting reports whether the value needs logfmt quoting.
func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

// escapeLogfmt escapes characters that must be quoted in logfmt values.
func escapeLogfmt(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// appendLine writes the log entry to the audit log file.
func (logger *Logger) appendLine(line string) error {
	if logger.path == "" {
		return errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(logger.path), auditLogDirMode); err != nil {
		return fmt.Errorf("create audit log directory %s: %w", filepath.Dir(logger.path), err)
	}
	file, err := os.OpenFile(logger.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditLogFileMode)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", logger.path, err)
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write audit log %s: %w", logger.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close audit log %s: %w", logger.path, err)
	}
	return nil
}

// warnf writes a warning message to the configured warnings writer.
func (logger *Logger) warnf(format string, args ...any) {
	if logger == nil || logger.warnings == nil {
		return
	}
	_, _ = fmt.Fprintf(logger.warnings, format+"\n", args...)
}
