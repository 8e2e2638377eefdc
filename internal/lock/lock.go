// Package lock provides advisory per-task locks over a shared directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// locksDirName is the relative path for the lock container.
	locksDirName = ".doyaken/locks"
	// lockFileExt is the filename extension for lock records.
	lockFileExt = ".lock"
	// lockFileMode defines the permissions for lock files.
	lockFileMode = 0o644
	// lockDirMode defines the permissions for the lock directory.
	lockDirMode = 0o755
)

// ErrLockLost is returned when a heartbeat discovers the lock changed hands.
var ErrLockLost = errors.New("task lock lost")

// Record captures the contents of a lock file.
type Record struct {
	Worker      string
	HeartbeatAt time.Time
}

// Manager coordinates advisory locks for task ids.
type Manager struct {
	dir        string
	staleAfter time.Duration
	now        func() time.Time
}

// NewManager builds a lock manager rooted at the provided project root.
func NewManager(projectRoot string, staleAfter time.Duration) (Manager, error) {
	if strings.TrimSpace(projectRoot) == "" {
		return Manager{}, errors.New("project root is required")
	}
	if staleAfter <= 0 {
		return Manager{}, errors.New("stale threshold must be positive")
	}
	return Manager{
		dir:        filepath.Join(projectRoot, locksDirName),
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

// StaleAfter returns the configured staleness threshold.
func (manager Manager) StaleAfter() time.Duration {
	return manager.staleAfter
}

// IsStale reports whether a lock record has aged past the threshold.
func IsStale(record Record, now time.Time, threshold time.Duration) bool {
	if record.HeartbeatAt.IsZero() {
		return true
	}
	return now.Sub(record.HeartbeatAt) > threshold
}

// TryAcquire attempts to take the lock for a task id.
// It succeeds when no lock exists, when the existing lock is stale, or when
// the caller already owns the lock. Losing a creation race reports
// not-acquired, never an error.
func (manager Manager) TryAcquire(taskID string, workerID string) (bool, error) {
	if strings.TrimSpace(taskID) == "" {
		return false, errors.New("task id is required")
	}
	if strings.TrimSpace(workerID) == "" {
		return false, errors.New("worker id is required")
	}

	record, exists, err := manager.Read(taskID)
	if err != nil {
		return false, err
	}
	if exists {
		if record.Worker == workerID {
			err := manager.refresh(taskID, workerID)
			if err == nil {
				return true, nil
			}
			if !errors.Is(err, ErrLockLost) {
				return false, err
			}
			// The lock vanished between the read and the refresh. Fall
			// through and race for a fresh create.
		} else {
			if !IsStale(record, manager.now(), manager.staleAfter) {
				return false, nil
			}
			reclaimed, err := manager.claimStale(taskID)
			if err != nil {
				return false, err
			}
			if !reclaimed {
				return false, nil
			}
		}
	}

	if err := os.MkdirAll(manager.dir, lockDirMode); err != nil {
		return false, fmt.Errorf("create lock directory %s: %w", manager.dir, err)
	}

	path := manager.lockPath(taskID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create lock %s: %w", path, err)
	}

	payload := formatRecord(Record{Worker: workerID, HeartbeatAt: manager.now().UTC()})
	if _, err := file.WriteString(payload); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("write lock %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("close lock %s: %w", path, err)
	}
	return true, nil
}

// claimStale takes a stale lock out of the way before the exclusive
// create. The rename is the race arbiter: exactly one contender moves
// the file aside. The moved file is re-read so a lock refreshed between
// the caller's read and the rename is put back rather than stolen.
func (manager Manager) claimStale(taskID string) (bool, error) {
	path := manager.lockPath(taskID)
	aside := fmt.Sprintf("%s.reclaim-%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reclaim stale lock for task %s: %w", taskID, err)
	}

	data, err := os.ReadFile(aside)
	if err != nil {
		_ = os.Remove(aside)
		return false, fmt.Errorf("read reclaimed lock for task %s: %w", taskID, err)
	}
	current, parseErr := parseRecord(data)
	if parseErr == nil && !IsStale(current, manager.now(), manager.staleAfter) {
		// The holder heartbeated in between. Restore the lock and
		// report a lost race.
		if err := os.Rename(aside, path); err != nil {
			return false, fmt.Errorf("restore lock for task %s: %w", taskID, err)
		}
		return false, nil
	}

	if err := os.Remove(aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("discard stale lock for task %s: %w", taskID, err)
	}
	return true, nil
}

// Heartbeat refreshes the lock timestamp, failing when ownership changed.
func (manager Manager) Heartbeat(taskID string, workerID string) error {
	record, exists, err := manager.Read(taskID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("heartbeat task %s: %w", taskID, ErrLockLost)
	}
	if record.Worker != workerID {
		return fmt.Errorf("heartbeat task %s: held by %s: %w", taskID, record.Worker, ErrLockLost)
	}
	return manager.refresh(taskID, workerID)
}

// Release removes the caller's lock. Releasing an absent or foreign lock is a no-op.
func (manager Manager) Release(taskID string, workerID string) error {
	record, exists, err := manager.Read(taskID)
	if err != nil {
		return err
	}
	if !exists || record.Worker != workerID {
		return nil
	}
	if err := os.Remove(manager.lockPath(taskID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock for task %s: %w", taskID, err)
	}
	return nil
}

// Held reports whether the worker currently owns a non-stale lock on the task.
func (manager Manager) Held(taskID string, workerID string) (bool, error) {
	record, exists, err := manager.Read(taskID)
	if err != nil {
		return false, err
	}
	if !exists || record.Worker != workerID {
		return false, nil
	}
	return !IsStale(record, manager.now(), manager.staleAfter), nil
}

// Read loads the lock record for a task id when one exists.
func (manager Manager) Read(taskID string) (Record, bool, error) {
	path := manager.lockPath(taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read lock %s: %w", path, err)
	}

	record, err := parseRecord(data)
	if err != nil {
		// A crash between create and write leaves an empty or partial lock.
		// Fall back to the file mtime so the lock still ages out.
		info, statErr := os.Stat(path)
		if statErr != nil {
			if errors.Is(statErr, os.ErrNotExist) {
				return Record{}, false, nil
			}
			return Record{}, false, fmt.Errorf("stat lock %s: %w", path, statErr)
		}
		return Record{Worker: record.Worker, HeartbeatAt: info.ModTime()}, true, nil
	}
	return record, true, nil
}

// refresh rewrites the lock metadata. The live lock file is renamed
// aside first, then rewritten and renamed back, so a lock removed by
// Release can never be resurrected by a late heartbeat. The initial
// rename doubles as the ownership arbiter against concurrent reclaims.
func (manager Manager) refresh(taskID string, workerID string) error {
	path := manager.lockPath(taskID)
	aside := fmt.Sprintf("%s.refresh-%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("refresh task %s: %w", taskID, ErrLockLost)
		}
		return fmt.Errorf("claim lock %s for refresh: %w", path, err)
	}

	data, err := os.ReadFile(aside)
	if err != nil {
		_ = os.Rename(aside, path)
		return fmt.Errorf("read lock for task %s: %w", taskID, err)
	}
	current, parseErr := parseRecord(data)
	if parseErr != nil || current.Worker != workerID {
		_ = os.Rename(aside, path)
		return fmt.Errorf("refresh task %s: held by %s: %w", taskID, current.Worker, ErrLockLost)
	}

	payload := formatRecord(Record{Worker: workerID, HeartbeatAt: manager.now().UTC()})
	if err := os.WriteFile(aside, []byte(payload), lockFileMode); err != nil {
		_ = os.Rename(aside, path)
		return fmt.Errorf("write lock for task %s: %w", taskID, err)
	}
	if err := os.Rename(aside, path); err != nil {
		return fmt.Errorf("refresh lock %s: %w", path, err)
	}
	return nil
}

// lockPath resolves the lock file path for a task id.
func (manager Manager) lockPath(taskID string) string {
	return filepath.Join(manager.dir, taskID+lockFileExt)
}

// formatRecord renders lock metadata as worker and heartbeat lines.
func formatRecord(record Record) string {
	return fmt.Sprintf("worker=%s\nheartbeat_at=%s\n", record.Worker, record.HeartbeatAt.Format(time.RFC3339))
}

// parseRecord reads worker and heartbeat metadata from lock file content.
func parseRecord(data []byte) (Record, error) {
	record := Record{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.HasPrefix(line, "worker=") {
			record.Worker = strings.TrimSpace(strings.TrimPrefix(line, "worker="))
			continue
		}
		if strings.HasPrefix(line, "heartbeat_at=") {
			parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, "heartbeat_at=")))
			if err != nil {
				return record, fmt.Errorf("parse heartbeat_at: %w", err)
			}
			record.HeartbeatAt = parsed
		}
	}
	if record.Worker == "" {
		return record, errors.New("missing worker")
	}
	if record.HeartbeatAt.IsZero() {
		return record, errors.New("missing heartbeat_at")
	}
	return record, nil
}
