package agent

import (
	"fmt"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
)

// Registry resolves configured agent names to runners.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry builds runners for the configured primary and fallback agents.
func NewRegistry(cfg config.AgentsConfig, projectRoot string) (Registry, error) {
	registry := Registry{runners: map[string]Runner{}}
	for _, name := range []string{cfg.Primary, cfg.Fallback} {
		if name == "" {
			continue
		}
		if _, ok := registry.runners[name]; ok {
			continue
		}
		argv, ok := cfg.CommandFor(name)
		if !ok {
			return Registry{}, fmt.Errorf("agent %q has no command template", name)
		}
		runner, err := NewExecRunner(name, argv, projectRoot)
		if err != nil {
			return Registry{}, err
		}
		registry.runners[name] = runner
	}
	return registry, nil
}

// Runner returns the runner registered under the agent name.
func (registry Registry) Runner(name string) (Runner, bool) {
	runner, ok := registry.runners[name]
	return runner, ok
}

// Register adds or replaces a runner, primarily for tests.
func (registry Registry) Register(runner Runner) {
	registry.runners[runner.Name()] = runner
}
