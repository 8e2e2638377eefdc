package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	stateDirMode     = 0o755
	manifestFileMode = 0o644
)

// initialLayoutDirs lists the directories scaffolded under .doyaken.
var initialLayoutDirs = []string{
	"tasks/blocked",
	"tasks/todo",
	"tasks/doing",
	"tasks/done",
	"locks",
	"local-state/checkpoints",
	"local-state/archive",
	"local-state/logs",
}

// manifestTemplate is the starter manifest written by InitLayout.
const manifestTemplate = `# doyaken project manifest
agents:
  primary: claude
  fallback: codex
  fallback_after: 2

phases:
  timeout_seconds:
    implement: 1800
    test: 1200
  gates:
    implement: "make test"
    test: "make test"

retries:
  max_attempts: 3
  circuit_threshold: 5

locks:
  stale_after_seconds: 300
  heartbeat_seconds: 60
`

// InitLayout scaffolds the .doyaken state layout and a starter manifest.
// Existing files are left untouched.
func InitLayout(projectRoot string) error {
	if projectRoot == "" {
		return errors.New("project root is required")
	}

	stateRoot := filepath.Join(projectRoot, projectStateDirName)
	for _, dir := range initialLayoutDirs {
		path := filepath.Join(stateRoot, dir)
		if err := os.MkdirAll(path, stateDirMode); err != nil {
			return fmt.Errorf("create state directory %s: %w", path, err)
		}
	}

	manifestPath := filepath.Join(stateRoot, manifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat manifest %s: %w", manifestPath, err)
	}
	if err := os.WriteFile(manifestPath, []byte(manifestTemplate), manifestFileMode); err != nil {
		return fmt.Errorf("write manifest %s: %w", manifestPath, err)
	}
	return nil
}
