package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/agent"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/checkpoint"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/lock"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/phase"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/retry"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
)

const successOutput = "Wrote file internal/sample.go.\nAll tests passed.\nTask complete.\n" +
	"```completion\ncomplete: true\nstate: done\nfiles_changed: 1\ntests_pass: true\n```\n"

// scriptedRunner fails a configured number of times per phase, then
// succeeds, recording every prompt it sees.
type scriptedRunner struct {
	name       string
	failures   map[string]int
	invoked    map[string]int
	prompts    []string
	failOutput string
}

func newScriptedRunner(name string) *scriptedRunner {
	return &scriptedRunner{
		name:     name,
		failures: map[string]int{},
		invoked:  map[string]int{},
	}
}

func (runner *scriptedRunner) Name() string { return runner.name }

func (runner *scriptedRunner) Invoke(_ context.Context, invocation agent.Invocation) (agent.Result, error) {
	runner.invoked[invocation.Phase]++
	runner.prompts = append(runner.prompts, invocation.Prompt)
	if runner.failures[invocation.Phase] > 0 {
		runner.failures[invocation.Phase]--
		output := runner.failOutput
		if output == "" {
			output = "something broke"
		}
		return agent.Result{ExitCode: 1, Output: output}, nil
	}
	return agent.Result{ExitCode: 0, Output: successOutput, SessionHandle: "sess-" + invocation.Phase}, nil
}

// recordingGate fails a configured number of times, then passes.
type recordingGate struct {
	failures int
	runs     int
	output   string
}

func (gate *recordingGate) Run(_ context.Context, _ string) (string, error) {
	gate.runs++
	if gate.failures > 0 {
		gate.failures--
		return gate.output, errors.New("exit status 2")
	}
	return "ok", nil
}

type harness struct {
	root        string
	cfg         config.Config
	store       task.Store
	locks       lock.Manager
	checkpoints checkpoint.Store
	runner      *scriptedRunner
	gate        *recordingGate
	executor    *Executor
	warnings    []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	cfg := config.Defaults()
	cfg.Retries.MaxAttempts = 3
	cfg.Retries.CircuitThreshold = 10

	store, err := task.NewStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	locks, err := lock.NewManager(root, cfg.Locks.StaleAfter())
	if err != nil {
		t.Fatalf("new lock manager: %v", err)
	}
	checkpoints, err := checkpoint.NewStore(root)
	if err != nil {
		t.Fatalf("new checkpoint store: %v", err)
	}
	registry, err := agent.NewRegistry(cfg.Agents, root)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	h := &harness{
		root:        root,
		cfg:         cfg,
		store:       store,
		locks:       locks,
		checkpoints: checkpoints,
		runner:      newScriptedRunner(cfg.Agents.Primary),
		gate:        &recordingGate{},
	}
	registry.Register(h.runner)
	registry.Register(newScriptedRunner(cfg.Agents.Fallback))

	breaker := retry.NewBreaker(cfg.Retries.CircuitThreshold)
	h.executor = New(cfg, store, locks, checkpoints, registry, nil, breaker, h.gate, "w1", func(message string) {
		h.warnings = append(h.warnings, message)
	})
	h.executor.sleep = func(time.Duration) {}
	return h
}

// claim seeds a doing task held by w1, the state Run expects.
func (h *harness) claim(t *testing.T, id string) task.Record {
	t.Helper()
	parsed, err := task.ParseID(id)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	record := task.Record{ID: parsed, Meta: task.Meta{State: task.StateTodo}, Body: "# " + id + "\n\nDo the thing.\n"}
	if err := h.store.Create(record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.store.Move(parsed, task.StateTodo, task.StateDoing); err != nil {
		t.Fatalf("move to doing: %v", err)
	}
	acquired, err := h.locks.TryAcquire(id, "w1")
	if err != nil || !acquired {
		t.Fatalf("acquire lock: acquired=%v err=%v", acquired, err)
	}
	claimed, err := h.store.ReadIn(task.StateDoing, parsed)
	if err != nil {
		t.Fatalf("read claimed: %v", err)
	}
	return claimed
}

func TestRunCompletesAllPhases(t *testing.T) {
	h := newHarness(t)
	record := h.claim(t, "002-001-sample")

	outcome, err := h.executor.Run(context.Background(), record)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Completed {
		t.Fatalf("expected completion, got %+v", outcome)
	}
	if !outcome.Confident {
		t.Fatalf("expected confident completion, warnings %v", h.warnings)
	}

	state, err := h.store.Locate(record.ID)
	if err != nil || state != task.StateDone {
		t.Fatalf("expected task in done, got %s (%v)", state, err)
	}
	if _, exists, _ := h.locks.Read(record.ID.String()); exists {
		t.Fatalf("expected lock released")
	}
	if _, found, _ := h.checkpoints.Load(record.ID.String()); found {
		t.Fatalf("expected checkpoint archived")
	}
	archived := filepath.Join(h.root, ".doyaken", "local-state", "archive", record.ID.String()+".json")
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("expected archived checkpoint: %v", err)
	}

	for _, name := range []string{"expand", "triage", "plan", "implement", "test", "docs", "review", "verify"} {
		if h.runner.invoked[name] != 1 {
			t.Fatalf("expected one invocation of %s, got %d", name, h.runner.invoked[name])
		}
	}
	// The two gated phases each ran their gate once.
	if h.gate.runs != 2 {
		t.Fatalf("expected 2 gate runs, got %d", h.gate.runs)
	}
}

func TestGateFailureFeedsOutputIntoRetry(t *testing.T) {
	h := newHarness(t)
	h.gate.failures = 1
	h.gate.output = "FAIL: TestSomething (0.01s)"
	record := h.claim(t, "002-001-sample")

	outcome, err := h.executor.Run(context.Background(), record)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Completed {
		t.Fatalf("expected completion after gate retry, got %+v", outcome)
	}
	if h.runner.invoked["implement"] != 2 {
		t.Fatalf("expected implement retried once, got %d invocations", h.runner.invoked["implement"])
	}

	var retryPrompt string
	for _, prompt := range h.runner.prompts {
		if strings.Contains(prompt, "Quality gate failure") {
			retryPrompt = prompt
		}
	}
	if retryPrompt == "" {
		t.Fatalf("expected a retry prompt carrying the gate failure")
	}
	if !strings.Contains(retryPrompt, "FAIL: TestSomething") {
		t.Fatalf("expected gate output in retry prompt")
	}
}

func TestExhaustedPhaseLeavesTaskInDoing(t *testing.T) {
	h := newHarness(t)
	h.runner.failures["plan"] = 100
	record := h.claim(t, "002-001-sample")

	outcome, err := h.executor.Run(context.Background(), record)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Exhausted || outcome.FailedPhase != phase.PhasePlan {
		t.Fatalf("expected plan exhaustion, got %+v", outcome)
	}
	if h.runner.invoked["plan"] != h.cfg.Retries.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", h.cfg.Retries.MaxAttempts, h.runner.invoked["plan"])
	}

	state, err := h.store.Locate(record.ID)
	if err != nil || state != task.StateDoing {
		t.Fatalf("expected task left in doing, got %s (%v)", state, err)
	}
	if _, exists, _ := h.locks.Read(record.ID.String()); exists {
		t.Fatalf("expected lock released so the task orphans cleanly")
	}

	annotated, err := h.store.ReadIn(task.StateDoing, record.ID)
	if err != nil {
		t.Fatalf("read annotated: %v", err)
	}
	var foundAnnotation bool
	for _, line := range annotated.Meta.Log {
		if strings.Contains(line, "exhausted") {
			foundAnnotation = true
		}
	}
	if !foundAnnotation {
		t.Fatalf("expected a failure annotation in the work log, got %v", annotated.Meta.Log)
	}
}

func TestCircuitBreakerHaltsRun(t *testing.T) {
	h := newHarness(t)
	h.runner.failures["expand"] = 100
	record := h.claim(t, "002-001-sample")

	breaker := retry.NewBreaker(2)
	h.executor.breaker = breaker
	h.executor.policy.MaxAttempts = 10

	_, err := h.executor.Run(context.Background(), record)
	if !errors.Is(err, retry.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if h.runner.invoked["expand"] != 2 {
		t.Fatalf("expected exactly 2 attempts before the halt, got %d", h.runner.invoked["expand"])
	}
	if _, exists, _ := h.locks.Read(record.ID.String()); exists {
		t.Fatalf("expected lock released on halt")
	}
	if _, found, _ := h.checkpoints.Load(record.ID.String()); !found {
		t.Fatalf("expected checkpoint flushed for the next run")
	}
}

func TestResumeFromCheckpointSkipsCompletedPhases(t *testing.T) {
	h := newHarness(t)
	record := h.claim(t, "002-001-sample")

	cp := checkpoint.New(record.ID.String(), "w2", time.Now())
	cp.LastCompletedPhase = phase.PhaseReview.Number() - 1
	cp.SessionHandle = "sess-old"
	if err := h.checkpoints.Save(cp); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	outcome, err := h.executor.Run(context.Background(), record)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Completed {
		t.Fatalf("expected completion, got %+v", outcome)
	}
	for _, name := range []string{"expand", "triage", "plan", "implement", "test", "docs"} {
		if h.runner.invoked[name] != 0 {
			t.Fatalf("expected %s skipped on resume, got %d invocations", name, h.runner.invoked[name])
		}
	}
	if h.runner.invoked["review"] != 1 || h.runner.invoked["verify"] != 1 {
		t.Fatalf("expected review and verify to run, got %v", h.runner.invoked)
	}
}

func TestFallbackAgentAfterPrimaryFailures(t *testing.T) {
	h := newHarness(t)
	h.runner.failures["expand"] = 100
	record := h.claim(t, "002-001-sample")

	fallback := newScriptedRunner(h.cfg.Agents.Fallback)
	registry, err := agent.NewRegistry(h.cfg.Agents, h.root)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	registry.Register(h.runner)
	registry.Register(fallback)
	h.executor.registry = registry
	h.executor.policy.MaxAttempts = 4
	h.executor.policy.FallbackAfter = 2

	outcome, err := h.executor.Run(context.Background(), record)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Completed {
		t.Fatalf("expected fallback to complete the run, got %+v", outcome)
	}
	if h.runner.invoked["expand"] != 2 {
		t.Fatalf("expected 2 primary attempts, got %d", h.runner.invoked["expand"])
	}
	if fallback.invoked["expand"] != 1 {
		t.Fatalf("expected 1 fallback attempt, got %d", fallback.invoked["expand"])
	}
}
