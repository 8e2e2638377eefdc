// Package executor drives a claimed task through the phase pipeline.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/agent"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/audit"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/checkpoint"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/lock"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/phase"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/retry"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
)

// Outcome summarizes one task run.
type Outcome struct {
	TaskID task.ID
	// Completed is set when the task reached done.
	Completed bool
	// Confident is set when the final phase cleared the completion gate.
	Confident bool
	// Exhausted is set when a phase ran out of retries.
	Exhausted bool
	// FailedPhase names the phase that exhausted its retries.
	FailedPhase phase.Phase
	// Confidence is the score of the last completed phase.
	Confidence int
}

// Executor runs the linear phase pipeline for one task at a time.
type Executor struct {
	cfg         config.Config
	store       task.Store
	locks       lock.Manager
	checkpoints checkpoint.Store
	registry    agent.Registry
	logger      *audit.Logger
	breaker     *retry.Breaker
	policy      retry.Policy
	gate        GateRunner
	worker      string
	warn        func(string)
	sleep       func(time.Duration)
	now         func() time.Time
}

// New builds an executor. The warn callback may be nil.
func New(
	cfg config.Config,
	store task.Store,
	locks lock.Manager,
	checkpoints checkpoint.Store,
	registry agent.Registry,
	logger *audit.Logger,
	breaker *retry.Breaker,
	gate GateRunner,
	worker string,
	warn func(string),
) *Executor {
	if warn == nil {
		warn = func(string) {}
	}
	return &Executor{
		cfg:         cfg,
		store:       store,
		locks:       locks,
		checkpoints: checkpoints,
		registry:    registry,
		logger:      logger,
		breaker:     breaker,
		policy:      retry.PolicyFromConfig(cfg),
		gate:        gate,
		worker:      worker,
		warn:        warn,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Run executes the task from its checkpointed phase to completion.
// The caller must already hold the task lock. The lock is always
// released before Run returns.
func (executor *Executor) Run(ctx context.Context, record task.Record) (Outcome, error) {
	taskID := record.ID.String()
	outcome := Outcome{TaskID: record.ID}

	cp, found, err := executor.checkpoints.Load(taskID)
	if err != nil {
		return outcome, err
	}
	if !found {
		cp = checkpoint.New(taskID, executor.worker, executor.now())
	}
	// A resumed orphan keeps its checkpoint but changes hands.
	cp.Worker = executor.worker
	if err := executor.checkpoints.Save(cp); err != nil {
		return outcome, err
	}

	defer func() {
		if releaseErr := executor.locks.Release(taskID, executor.worker); releaseErr != nil {
			executor.warn(fmt.Sprintf("release lock for %s: %v", taskID, releaseErr))
		}
		executor.auditLock(audit.EventLockRelease, taskID)
	}()

	var priorContext []string
	for index := cp.NextPhase(); index < phase.Count(); index++ {
		current := phase.Phase(index)

		if err := executor.breaker.Allow(); err != nil {
			return executor.haltCircuitOpen(outcome, cp)
		}
		if err := executor.locks.Heartbeat(taskID, executor.worker); err != nil {
			return outcome, fmt.Errorf("task %s: %w", taskID, err)
		}

		result, exhausted, err := executor.runPhase(ctx, record, current, &cp, priorContext)
		if err != nil {
			if errors.Is(err, retry.ErrCircuitOpen) {
				return executor.haltCircuitOpen(outcome, cp)
			}
			return outcome, err
		}
		if exhausted {
			return executor.failExhausted(outcome, record, current, cp)
		}

		verdict := retry.EvaluateCompletion(result.Output)
		if verdict.Warning != "" {
			executor.warn(fmt.Sprintf("task %s phase %s: %s", taskID, current, verdict.Warning))
		}

		cp.CompletePhase(index, verdict.Score)
		if err := executor.checkpoints.Save(cp); err != nil {
			return outcome, err
		}
		executor.breaker.RecordSuccess()
		executor.auditPhaseComplete(taskID, current, verdict.Score)

		outcome.Confidence = verdict.Score
		outcome.Confident = verdict.Confident
		priorContext = append(priorContext, phaseContext(current, result.Output))
	}

	return executor.finish(outcome, record, cp)
}

// runPhase invokes the agent for one phase until success, exhaustion,
// or an open circuit.
func (executor *Executor) runPhase(
	ctx context.Context,
	record task.Record,
	current phase.Phase,
	cp *checkpoint.Checkpoint,
	priorContext []string,
) (agent.Result, bool, error) {
	taskID := record.ID.String()
	phaseName := current.String()
	gateFailure := ""

	for {
		if err := executor.breaker.Allow(); err != nil {
			return agent.Result{}, false, err
		}

		attempts := cp.AttemptsFor(phaseName)
		agentName := executor.policy.AgentFor(attempts, executor.cfg.Agents.Primary, executor.cfg.Agents.Fallback)
		runner, ok := executor.registry.Runner(agentName)
		if !ok {
			return agent.Result{}, false, fmt.Errorf("no runner for agent %q", agentName)
		}

		invocation := agent.Invocation{
			TaskID:       taskID,
			Phase:        phaseName,
			Prompt:       renderPrompt(record, current, priorContext, gateFailure),
			Timeout:      executor.cfg.Phases.TimeoutFor(phaseName),
			ResumeHandle: cp.SessionHandle,
			Model:        executor.cfg.Agents.Model,
		}

		executor.auditPhaseAttempt(taskID, phaseName, agentName, attempts+1)
		result, err := runner.Invoke(ctx, invocation)
		cp.RecordAttempt(phaseName)
		if saveErr := executor.checkpoints.Save(*cp); saveErr != nil {
			return agent.Result{}, false, saveErr
		}
		if err != nil {
			return agent.Result{}, false, fmt.Errorf("invoke %s for task %s phase %s: %w", agentName, taskID, phaseName, err)
		}
		if result.SessionHandle != "" {
			cp.SessionHandle = result.SessionHandle
		}

		failure := ""
		switch {
		case result.TimedOut:
			failure = fmt.Sprintf("timed out after %s", invocation.Timeout)
		case result.ExitCode != 0:
			failure = fmt.Sprintf("exited with code %d", result.ExitCode)
		}

		if failure == "" && current.Gated() {
			if command, ok := executor.cfg.Phases.GateFor(phaseName); ok {
				output, gateErr := executor.gate.Run(ctx, command)
				if gateErr != nil {
					failure = fmt.Sprintf("quality gate %q failed", command)
					gateFailure = output
				}
			}
		}

		if failure == "" {
			return result, false, nil
		}

		executor.breaker.RecordFailure()
		executor.warn(fmt.Sprintf("task %s phase %s attempt %d: %s", taskID, phaseName, attempts+1, failure))

		if executor.policy.Exhausted(cp.AttemptsFor(phaseName)) {
			return agent.Result{}, true, nil
		}
		if err := executor.locks.Heartbeat(taskID, executor.worker); err != nil {
			return agent.Result{}, false, fmt.Errorf("task %s: %w", taskID, err)
		}
		executor.sleep(executor.policy.Backoff(attempts))
	}
}

// finish moves the task to done and archives its checkpoint.
func (executor *Executor) finish(outcome Outcome, record task.Record, cp checkpoint.Checkpoint) (Outcome, error) {
	taskID := record.ID.String()
	if err := executor.store.Move(record.ID, task.StateDoing, task.StateDone); err != nil {
		return outcome, err
	}
	if err := executor.store.AppendLog(record.ID, fmt.Sprintf("completed by %s with confidence %d", executor.worker, outcome.Confidence)); err != nil {
		return outcome, err
	}
	if err := executor.checkpoints.Archive(taskID); err != nil {
		return outcome, err
	}
	executor.auditTransition(taskID, task.StateDoing, task.StateDone)
	outcome.Completed = true
	return outcome, nil
}

// failExhausted leaves the task in doing with a failure annotation so
// the next selector pass treats it as an orphan.
func (executor *Executor) failExhausted(outcome Outcome, record task.Record, current phase.Phase, cp checkpoint.Checkpoint) (Outcome, error) {
	taskID := record.ID.String()
	attempts := cp.AttemptsFor(current.String())
	annotation := fmt.Sprintf("phase %s exhausted after %d attempts by %s", current, attempts, executor.worker)
	if err := executor.store.AppendLog(record.ID, annotation); err != nil {
		return outcome, err
	}
	executor.auditPhaseExhausted(taskID, current.String(), attempts)
	outcome.Exhausted = true
	outcome.FailedPhase = current
	return outcome, nil
}

// haltCircuitOpen flushes the checkpoint and surfaces the halt.
func (executor *Executor) haltCircuitOpen(outcome Outcome, cp checkpoint.Checkpoint) (Outcome, error) {
	if err := executor.checkpoints.Save(cp); err != nil {
		executor.warn(fmt.Sprintf("flush checkpoint for %s: %v", cp.TaskID, err))
	}
	executor.auditCircuitOpen(cp.TaskID)
	return outcome, fmt.Errorf("task %s: %w", cp.TaskID, retry.ErrCircuitOpen)
}

func (executor *Executor) auditLock(event string, taskID string) {
	if executor.logger == nil {
		return
	}
	_ = executor.logger.LogLock(event, taskID, executor.worker)
}

func (executor *Executor) auditTransition(taskID string, from task.State, to task.State) {
	if executor.logger == nil {
		return
	}
	_ = executor.logger.LogTransition(taskID, executor.worker, string(from), string(to))
}

func (executor *Executor) auditPhaseAttempt(taskID string, phaseName string, agentName string, attempt int) {
	if executor.logger == nil {
		return
	}
	_ = executor.logger.LogPhaseAttempt(taskID, executor.worker, phaseName, agentName, attempt)
}

func (executor *Executor) auditPhaseComplete(taskID string, current phase.Phase, score int) {
	if executor.logger == nil {
		return
	}
	_ = executor.logger.LogPhaseComplete(taskID, executor.worker, current.String(), score)
}

func (executor *Executor) auditPhaseExhausted(taskID string, phaseName string, attempts int) {
	if executor.logger == nil {
		return
	}
	_ = executor.logger.LogPhaseExhausted(taskID, executor.worker, phaseName, attempts)
}

func (executor *Executor) auditCircuitOpen(taskID string) {
	if executor.logger == nil {
		return
	}
	_ = executor.logger.LogCircuitOpen(taskID, executor.worker, executor.breaker.Failures())
}
