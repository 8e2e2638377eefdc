package agent

import (
	"context"
	"testing"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
)

func TestNewRegistryResolvesConfiguredAgents(t *testing.T) {
	cfg := config.Defaults().Agents
	registry, err := NewRegistry(cfg, t.TempDir())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, ok := registry.Runner(cfg.Primary); !ok {
		t.Fatalf("expected runner for primary agent %q", cfg.Primary)
	}
	if _, ok := registry.Runner(cfg.Fallback); !ok {
		t.Fatalf("expected runner for fallback agent %q", cfg.Fallback)
	}
	if _, ok := registry.Runner("nonesuch"); ok {
		t.Fatalf("unexpected runner for unknown agent")
	}
}

func TestNewRegistryRejectsAgentWithoutCommand(t *testing.T) {
	cfg := config.Defaults().Agents
	cfg.Primary = "mystery"
	if _, err := NewRegistry(cfg, t.TempDir()); err == nil {
		t.Fatalf("expected error for agent with no command template")
	}
}

type stubRunner struct{ name string }

func (stub stubRunner) Name() string { return stub.name }

func (stub stubRunner) Invoke(_ context.Context, _ Invocation) (Result, error) {
	return Result{}, nil
}

func TestRegisterReplacesRunner(t *testing.T) {
	registry, err := NewRegistry(config.Defaults().Agents, t.TempDir())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	registry.Register(stubRunner{name: "stub"})
	if _, ok := registry.Runner("stub"); !ok {
		t.Fatalf("expected registered stub runner")
	}
}
