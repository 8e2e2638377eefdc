// Package repo provides project root discovery helpers.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stateDirName is the filesystem entry that marks an initialized project root.
const stateDirName = ".doyaken"

// ErrProjectNotFound is returned when no initialized project root can be discovered.
var ErrProjectNotFound = errors.New("no doyaken project found")

// DiscoverRootFromCWD resolves the project root from the current working directory.
func DiscoverRootFromCWD() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return DiscoverRoot(cwd)
}

// DiscoverRoot resolves the project root by walking upward from start.
func DiscoverRoot(start string) (string, error) {
	if start == "" {
		return "", fmt.Errorf("%w: provide a start directory or run inside a project", ErrProjectNotFound)
	}

	absStart, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %s: %w", start, err)
	}

	absStart, err = filepath.EvalSymlinks(absStart)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks for %s: %w", absStart, err)
	}

	info, err := os.Stat(absStart)
	if err != nil {
		return "", fmt.Errorf("stat start path %s: %w", absStart, err)
	}

	current := absStart
	if !info.IsDir() {
		current = filepath.Dir(absStart)
	}

	for {
		found, err := hasStateDir(current)
		if err != nil {
			return "", err
		}
		if found {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("%w from %s; run inside an initialized project or run `doyaken init`", ErrProjectNotFound, absStart)
}

// hasStateDir reports whether the directory contains a .doyaken entry.
func hasStateDir(dir string) (bool, error) {
	path := filepath.Join(dir, stateDirName)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}
