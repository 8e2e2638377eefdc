// Package config defines the project manifest model for doyaken.
package config

import (
	"strings"
	"time"
)

// Config defines the full manifest surface consumed by the orchestrator.
// Loaded once per run and passed as an immutable value to every component.
type Config struct {
	Worker      WorkerConfig      `yaml:"worker"`
	Agents      AgentsConfig      `yaml:"agents"`
	Phases      PhasesConfig      `yaml:"phases"`
	Retries     RetriesConfig     `yaml:"retries"`
	Locks       LocksConfig       `yaml:"locks"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints"`
}

// WorkerConfig captures per-worker identity and orphan handling.
type WorkerConfig struct {
	// ID overrides the generated worker identity when set.
	ID string `yaml:"id"`
	// AutoResume resumes orphaned tasks without prompting.
	AutoResume bool `yaml:"auto_resume"`
}

// AgentsConfig selects the agent CLI, model, and fallback chain.
type AgentsConfig struct {
	Primary string `yaml:"primary"`
	// Fallback substitutes for the primary after repeated failures.
	Fallback string `yaml:"fallback"`
	Model    string `yaml:"model"`
	// FallbackAfter is the failure count with the primary before the
	// fallback agent is substituted.
	FallbackAfter int `yaml:"fallback_after"`
	// Commands overrides the built-in argv template per agent name.
	Commands map[string][]string `yaml:"commands"`
}

// PhasesConfig carries per-phase timeouts and quality-gate commands.
type PhasesConfig struct {
	// TimeoutSeconds maps phase name to wall-clock timeout.
	TimeoutSeconds map[string]int `yaml:"timeout_seconds"`
	// Gates maps phase name to a shell command that must exit zero.
	Gates map[string]string `yaml:"gates"`
}

// RetriesConfig defines retry, backoff, and circuit-breaker policy.
type RetriesConfig struct {
	MaxAttempts        int `yaml:"max_attempts"`
	BackoffBaseSeconds int `yaml:"backoff_base_seconds"`
	BackoffCapSeconds  int `yaml:"backoff_cap_seconds"`
	// CircuitThreshold is the consecutive phase-failure count that halts the run.
	CircuitThreshold int `yaml:"circuit_threshold"`
}

// LocksConfig defines advisory lock staleness and heartbeat cadence.
type LocksConfig struct {
	StaleAfterSeconds int `yaml:"stale_after_seconds"`
	HeartbeatSeconds  int `yaml:"heartbeat_seconds"`
}

// CheckpointsConfig defines checkpoint retention.
type CheckpointsConfig struct {
	MaxAgeHours int `yaml:"max_age_hours"`
}

// Built-in agent CLI names.
const (
	AgentClaude   = "claude"
	AgentCodex    = "codex"
	AgentGemini   = "gemini"
	AgentOpencode = "opencode"
)

// BuiltInCommand returns the argv template for a built-in agent CLI.
// The template placeholder {prompt_path} is replaced at invocation time.
func BuiltInCommand(agent string) ([]string, bool) {
	switch agent {
	case AgentClaude:
		return []string{"claude", "--print", "{prompt_path}"}, true
	case AgentCodex:
		return []string{"codex", "exec", "--sandbox=workspace-write", "{prompt_path}"}, true
	case AgentGemini:
		return []string{"gemini", "{prompt_path}"}, true
	case AgentOpencode:
		return []string{"opencode", "run", "{prompt_path}"}, true
	default:
		return nil, false
	}
}

// IsValidAgent returns true when the agent name is a known built-in.
func IsValidAgent(agent string) bool {
	_, ok := BuiltInCommand(agent)
	return ok
}

// CommandFor resolves the argv template for an agent, preferring overrides.
func (cfg AgentsConfig) CommandFor(agent string) ([]string, bool) {
	if override, ok := cfg.Commands[agent]; ok && len(override) > 0 {
		return override, true
	}
	return BuiltInCommand(agent)
}

// TimeoutFor returns the wall-clock timeout for a phase name.
func (cfg PhasesConfig) TimeoutFor(phaseName string) time.Duration {
	if seconds, ok := cfg.TimeoutSeconds[phaseName]; ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return time.Duration(defaultPhaseTimeoutSeconds) * time.Second
}

// GateFor returns the quality-gate command for a phase name when configured.
func (cfg PhasesConfig) GateFor(phaseName string) (string, bool) {
	command, ok := cfg.Gates[phaseName]
	command = strings.TrimSpace(command)
	return command, ok && command != ""
}

// StaleAfter returns the lock staleness threshold as a duration.
func (cfg LocksConfig) StaleAfter() time.Duration {
	return time.Duration(cfg.StaleAfterSeconds) * time.Second
}

// HeartbeatInterval returns the lock refresh cadence as a duration.
func (cfg LocksConfig) HeartbeatInterval() time.Duration {
	return time.Duration(cfg.HeartbeatSeconds) * time.Second
}

// MaxAge returns the checkpoint retention window as a duration.
func (cfg CheckpointsConfig) MaxAge() time.Duration {
	return time.Duration(cfg.MaxAgeHours) * time.Hour
}

// BackoffBase returns the initial retry delay.
func (cfg RetriesConfig) BackoffBase() time.Duration {
	return time.Duration(cfg.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the maximum retry delay.
func (cfg RetriesConfig) BackoffCap() time.Duration {
	return time.Duration(cfg.BackoffCapSeconds) * time.Second
}
