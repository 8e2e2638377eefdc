// Package checkpoint manages persisted per-task run snapshots.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	checkpointsDirName = ".doyaken/local-state/checkpoints"
	archiveDirName     = ".doyaken/local-state/archive"
	checkpointFileMode = 0o644
	checkpointDirMode  = 0o755
	checkpointFileExt  = ".json"
)

// Checkpoint snapshots one task run for mid-pipeline resume.
type Checkpoint struct {
	TaskID string `json:"task_id"`
	Worker string `json:"worker"`
	// LastCompletedPhase is the index of the last finished phase, -1 when none.
	LastCompletedPhase int `json:"last_completed_phase"`
	// Attempts counts invocations per phase name.
	Attempts map[string]int `json:"attempts"`
	// SessionHandle is the agent session captured for context continuity.
	SessionHandle string `json:"session_handle,omitempty"`
	// Confidence is the score history across completed phases.
	Confidence []int     `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// New builds a fresh checkpoint for a task run.
func New(taskID string, worker string, at time.Time) Checkpoint {
	return Checkpoint{
		TaskID:             taskID,
		Worker:             worker,
		LastCompletedPhase: -1,
		Attempts:           map[string]int{},
		CreatedAt:          at.UTC(),
		UpdatedAt:          at.UTC(),
	}
}

// NextPhase returns the index of the phase the run should enter next.
func (cp Checkpoint) NextPhase() int {
	return cp.LastCompletedPhase + 1
}

// RecordAttempt counts one invocation of the named phase.
func (cp *Checkpoint) RecordAttempt(phaseName string) {
	if cp.Attempts == nil {
		cp.Attempts = map[string]int{}
	}
	cp.Attempts[phaseName]++
}

// AttemptsFor returns the attempt count for the named phase.
func (cp Checkpoint) AttemptsFor(phaseName string) int {
	return cp.Attempts[phaseName]
}

// CompletePhase marks the phase index finished and records its score.
func (cp *Checkpoint) CompletePhase(index int, score int) {
	cp.LastCompletedPhase = index
	cp.Confidence = append(cp.Confidence, score)
}

// Store provides durable checkpoint persistence under local state.
type Store struct {
	dir        string
	archiveDir string
	now        func() time.Time
}

// NewStore builds a checkpoint store rooted at the provided project root.
func NewStore(projectRoot string) (Store, error) {
	if strings.TrimSpace(projectRoot) == "" {
		return Store{}, errors.New("project root is required")
	}
	return Store{
		dir:        filepath.Join(projectRoot, checkpointsDirName),
		archiveDir: filepath.Join(projectRoot, archiveDirName),
		now:        time.Now,
	}, nil
}

// Load reads the checkpoint for a task id when one exists.
func (store Store) Load(taskID string) (Checkpoint, bool, error) {
	path := store.checkpointPath(taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if cp.Attempts == nil {
		cp.Attempts = map[string]int{}
	}
	return cp, true, nil
}

// Save writes a checkpoint to disk via temp file and atomic rename.
func (store Store) Save(cp Checkpoint) error {
	if strings.TrimSpace(cp.TaskID) == "" {
		return errors.New("checkpoint task id is required")
	}
	if err := os.MkdirAll(store.dir, checkpointDirMode); err != nil {
		return fmt.Errorf("create checkpoint directory %s: %w", store.dir, err)
	}

	cp.UpdatedAt = store.now().UTC()
	encoded, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint for task %s: %w", cp.TaskID, err)
	}
	encoded = append(encoded, '\n')

	path := store.checkpointPath(cp.TaskID)
	temp, err := os.CreateTemp(store.dir, ".tmp-"+cp.TaskID+"-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint for task %s: %w", cp.TaskID, err)
	}
	tempPath := temp.Name()
	if _, err := temp.Write(encoded); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp checkpoint %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp checkpoint %s: %w", tempPath, err)
	}
	if err := os.Chmod(tempPath, checkpointFileMode); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod temp checkpoint %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("publish checkpoint %s: %w", path, err)
	}
	return nil
}

// Archive moves a completed task's checkpoint into the archive directory.
func (store Store) Archive(taskID string) error {
	source := store.checkpointPath(taskID)
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat checkpoint %s: %w", source, err)
	}
	if err := os.MkdirAll(store.archiveDir, checkpointDirMode); err != nil {
		return fmt.Errorf("create archive directory %s: %w", store.archiveDir, err)
	}
	destination := filepath.Join(store.archiveDir, taskID+checkpointFileExt)
	if err := os.Rename(source, destination); err != nil {
		return fmt.Errorf("archive checkpoint for task %s: %w", taskID, err)
	}
	return nil
}

// Discard removes the checkpoint for a task id when present.
func (store Store) Discard(taskID string) error {
	if err := os.Remove(store.checkpointPath(taskID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard checkpoint for task %s: %w", taskID, err)
	}
	return nil
}

// PruneExpired removes checkpoints older than the retention window and
// returns the affected task ids.
func (store Store) PruneExpired(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint directory %s: %w", store.dir, err)
	}

	cutoff := store.now().Add(-maxAge)
	var pruned []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), checkpointFileExt) {
			continue
		}
		taskID := strings.TrimSuffix(entry.Name(), checkpointFileExt)
		cp, found, err := store.Load(taskID)
		if err != nil || !found {
			continue
		}
		if cp.UpdatedAt.After(cutoff) {
			continue
		}
		if err := store.Discard(taskID); err != nil {
			return pruned, err
		}
		pruned = append(pruned, taskID)
	}
	return pruned, nil
}

// checkpointPath resolves the checkpoint file for a task id.
func (store Store) checkpointPath(taskID string) string {
	return filepath.Join(store.dir, taskID+checkpointFileExt)
}
