package config

import "fmt"

const (
	defaultAgentPrimary        = AgentClaude
	defaultAgentFallback       = AgentCodex
	defaultAgentFallbackAfter  = 2
	defaultPhaseTimeoutSeconds = 900
	defaultMaxAttempts         = 3
	defaultBackoffBaseSeconds  = 2
	defaultBackoffCapSeconds   = 60
	defaultCircuitThreshold    = 5
	defaultStaleAfterSeconds   = 300
	defaultHeartbeatSeconds    = 60
	defaultCheckpointAgeHours  = 72
	defaultGateCommand         = "make test"
)

// defaultPhaseTimeouts lists the per-phase timeouts in seconds.
var defaultPhaseTimeouts = map[string]int{
	"expand":    300,
	"triage":    300,
	"plan":      600,
	"implement": 1800,
	"test":      1200,
	"docs":      600,
	"review":    900,
	"verify":    600,
}

// defaultGates lists the phases that ship with a quality gate.
var defaultGates = map[string]string{
	"implement": defaultGateCommand,
	"test":      defaultGateCommand,
}

// Defaults returns the documented manifest defaults.
func Defaults() Config {
	timeouts := make(map[string]int, len(defaultPhaseTimeouts))
	for name, seconds := range defaultPhaseTimeouts {
		timeouts[name] = seconds
	}
	gates := make(map[string]string, len(defaultGates))
	for name, command := range defaultGates {
		gates[name] = command
	}
	return Config{
		Worker: WorkerConfig{},
		Agents: AgentsConfig{
			Primary:       defaultAgentPrimary,
			Fallback:      defaultAgentFallback,
			FallbackAfter: defaultAgentFallbackAfter,
			Commands:      map[string][]string{},
		},
		Phases: PhasesConfig{
			TimeoutSeconds: timeouts,
			Gates:          gates,
		},
		Retries: RetriesConfig{
			MaxAttempts:        defaultMaxAttempts,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffCapSeconds:  defaultBackoffCapSeconds,
			CircuitThreshold:   defaultCircuitThreshold,
		},
		Locks: LocksConfig{
			StaleAfterSeconds: defaultStaleAfterSeconds,
			HeartbeatSeconds:  defaultHeartbeatSeconds,
		},
		Checkpoints: CheckpointsConfig{
			MaxAgeHours: defaultCheckpointAgeHours,
		},
	}
}

// ApplyDefaults fills missing or invalid values with documented defaults.
func ApplyDefaults(cfg Config, warn func(string)) Config {
	defaults := Defaults()

	cfg.Agents.Primary = normalizeAgent(cfg.Agents.Primary, defaults.Agents.Primary, "agents.primary", cfg.Agents.Commands, warn)
	cfg.Agents.Fallback = normalizeAgent(cfg.Agents.Fallback, defaults.Agents.Fallback, "agents.fallback", cfg.Agents.Commands, warn)
	cfg.Agents.FallbackAfter = normalizePositiveInt(cfg.Agents.FallbackAfter, defaults.Agents.FallbackAfter, "agents.fallback_after", warn)
	if cfg.Agents.Commands == nil {
		cfg.Agents.Commands = map[string][]string{}
	}

	if cfg.Phases.TimeoutSeconds == nil {
		cfg.Phases.TimeoutSeconds = map[string]int{}
	}
	for name, seconds := range defaults.Phases.TimeoutSeconds {
		configured, ok := cfg.Phases.TimeoutSeconds[name]
		if !ok {
			cfg.Phases.TimeoutSeconds[name] = seconds
			continue
		}
		if configured <= 0 {
			emitWarning(warn, fmt.Sprintf("phases.timeout_seconds.%s must be positive; using default %d", name, seconds))
			cfg.Phases.TimeoutSeconds[name] = seconds
		}
	}
	if cfg.Phases.Gates == nil {
		gates := make(map[string]string, len(defaults.Phases.Gates))
		for name, command := range defaults.Phases.Gates {
			gates[name] = command
		}
		cfg.Phases.Gates = gates
	}

	cfg.Retries.MaxAttempts = normalizePositiveInt(cfg.Retries.MaxAttempts, defaults.Retries.MaxAttempts, "retries.max_attempts", warn)
	cfg.Retries.BackoffBaseSeconds = normalizePositiveInt(cfg.Retries.BackoffBaseSeconds, defaults.Retries.BackoffBaseSeconds, "retries.backoff_base_seconds", warn)
	cfg.Retries.BackoffCapSeconds = normalizePositiveInt(cfg.Retries.BackoffCapSeconds, defaults.Retries.BackoffCapSeconds, "retries.backoff_cap_seconds", warn)
	cfg.Retries.CircuitThreshold = normalizePositiveInt(cfg.Retries.CircuitThreshold, defaults.Retries.CircuitThreshold, "retries.circuit_threshold", warn)

	cfg.Locks.StaleAfterSeconds = normalizePositiveInt(cfg.Locks.StaleAfterSeconds, defaults.Locks.StaleAfterSeconds, "locks.stale_after_seconds", warn)
	cfg.Locks.HeartbeatSeconds = normalizePositiveInt(cfg.Locks.HeartbeatSeconds, defaults.Locks.HeartbeatSeconds, "locks.heartbeat_seconds", warn)
	if cfg.Locks.HeartbeatSeconds >= cfg.Locks.StaleAfterSeconds {
		emitWarning(warn, fmt.Sprintf("locks.heartbeat_seconds %d must be below locks.stale_after_seconds %d; using defaults", cfg.Locks.HeartbeatSeconds, cfg.Locks.StaleAfterSeconds))
		cfg.Locks.HeartbeatSeconds = defaults.Locks.HeartbeatSeconds
		cfg.Locks.StaleAfterSeconds = defaults.Locks.StaleAfterSeconds
	}

	cfg.Checkpoints.MaxAgeHours = normalizePositiveInt(cfg.Checkpoints.MaxAgeHours, defaults.Checkpoints.MaxAgeHours, "checkpoints.max_age_hours", warn)

	return cfg
}

// normalizeAgent validates an agent name against built-ins and overrides.
func normalizeAgent(agent string, fallback string, key string, commands map[string][]string, warn func(string)) string {
	if agent == "" {
		return fallback
	}
	if IsValidAgent(agent) {
		return agent
	}
	if override, ok := commands[agent]; ok && len(override) > 0 {
		return agent
	}
	emitWarning(warn, fmt.Sprintf("%s %q is not a known agent and has no command override; using %q", key, agent, fallback))
	return fallback
}

// normalizePositiveInt replaces non-positive values with the default.
func normalizePositiveInt(value int, fallback int, key string, warn func(string)) int {
	if value > 0 {
		return value
	}
	if value != 0 {
		emitWarning(warn, fmt.Sprintf("%s must be positive; using default %d", key, fallback))
	}
	return fallback
}

// emitWarning sends a warning to the configured sink.
func emitWarning(warn func(string), message string) {
	if warn == nil {
		return
	}
	warn(message)
}
