package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDirName   = ".config"
	manifestFileName    = "manifest.yml"
	projectStateDirName = ".doyaken"
)

// Overrides carries CLI-level settings applied over the manifest layers.
type Overrides struct {
	WorkerID   string
	AutoResume *bool
}

// Load resolves configuration from user defaults, the project manifest, and
// CLI overrides. Later layers win; missing files are not an error.
func Load(projectRoot string, overrides Overrides, warn func(string)) (Config, error) {
	var cfg Config

	userPath, err := userManifestPath()
	if err != nil {
		return Config{}, err
	}
	if err := mergeManifestLayer(&cfg, userPath, "user defaults"); err != nil {
		return Config{}, err
	}

	if projectRoot != "" {
		projectPath := filepath.Join(projectRoot, projectStateDirName, manifestFileName)
		if err := mergeManifestLayer(&cfg, projectPath, "project manifest"); err != nil {
			return Config{}, err
		}
	}

	if overrides.WorkerID != "" {
		cfg.Worker.ID = overrides.WorkerID
	}
	if overrides.AutoResume != nil {
		cfg.Worker.AutoResume = *overrides.AutoResume
	}

	return ApplyDefaults(cfg, warn), nil
}

// userManifestPath resolves the user defaults path for manifest.yml.
func userManifestPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, userConfigDirName, "doyaken", manifestFileName), nil
}

// mergeManifestLayer decodes a manifest file over the accumulated config.
// Fields absent from the file keep their prior values.
func mergeManifestLayer(cfg *Config, path string, label string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s %s: %w", label, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s %s: %w", label, path, err)
	}
	return nil
}
