package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/agent"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/executor"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/lock"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/retry"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/selector"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/worker"
)

// session wires the selector and executor for one worker run.
type session struct {
	env    environment
	cfg    config.Config
	worker string
	locks  lock.Manager
	sel    selector.Selector
	exec   *executor.Executor
}

func newSession(env environment, cfg config.Config) (*session, error) {
	workerID := worker.Identity(cfg.Worker.ID)

	// Rebuild the lock manager with the manifest's staleness threshold.
	locks, err := lock.NewManager(env.root, cfg.Locks.StaleAfter())
	if err != nil {
		return nil, err
	}
	registry, err := agent.NewRegistry(cfg.Agents, env.root)
	if err != nil {
		return nil, err
	}

	breaker := retry.NewBreaker(cfg.Retries.CircuitThreshold)
	exec := executor.New(cfg, env.store, locks, env.checkpoints, registry,
		env.logger, breaker, executor.ShellGate{Dir: env.root}, workerID, warnStderr)

	var prompter selector.Prompter
	if !cfg.Worker.AutoResume {
		prompter = selector.TimeoutPrompter{In: os.Stdin, Out: os.Stdout}
	}
	sel := selector.New(env.store, locks, env.logger, workerID, cfg.Worker.AutoResume, prompter)

	return &session{
		env:    env,
		cfg:    cfg,
		worker: workerID,
		locks:  locks,
		sel:    sel,
		exec:   exec,
	}, nil
}

// runLoop selects and executes up to count tasks.
func (s *session) runLoop(ctx context.Context, count int) int {
	if err := s.env.store.Sanity(); err != nil {
		return fail(err)
	}
	if pruned, err := s.env.checkpoints.PruneExpired(s.cfg.Checkpoints.MaxAge()); err != nil {
		warnStderr(fmt.Sprintf("prune checkpoints: %v", err))
	} else if len(pruned) > 0 {
		warnStderr(fmt.Sprintf("pruned %d expired checkpoints", len(pruned)))
	}
	if count < 1 {
		count = 1
	}

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			return 1
		}

		record, err := s.sel.Next()
		if err != nil {
			return fail(err)
		}
		if record == nil {
			fmt.Println("no available work")
			return 0
		}

		if code := s.runOne(ctx, *record); code != 0 {
			return code
		}
	}
	return 0
}

// runNamed executes one specific task, bypassing selection.
func (s *session) runNamed(ctx context.Context, rawID string) int {
	id, err := task.ParseID(rawID)
	if err != nil {
		return fail(err)
	}
	state, err := s.env.store.Locate(id)
	if err != nil {
		return fail(err)
	}
	if state != task.StateTodo && state != task.StateDoing {
		return fail(fmt.Errorf("task %s is %s, expected todo or doing", id, state))
	}

	acquired, err := s.locks.TryAcquire(id.String(), s.worker)
	if err != nil {
		return fail(err)
	}
	if !acquired {
		return fail(fmt.Errorf("task %s is locked by another worker", id))
	}

	if state == task.StateTodo {
		if err := s.env.store.Move(id, task.StateTodo, task.StateDoing); err != nil {
			return fail(err)
		}
	}
	record, err := s.env.store.ReadIn(task.StateDoing, id)
	if err != nil {
		return fail(err)
	}
	record.Assign(s.worker, time.Now())
	if err := s.env.store.Write(record); err != nil {
		return fail(err)
	}

	return s.runOne(ctx, record)
}

// runOne executes a claimed task with a background lock heartbeat.
func (s *session) runOne(ctx context.Context, record task.Record) int {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeat(heartbeatCtx, record.ID.String())

	outcome, err := s.exec.Run(ctx, record)
	if err != nil {
		if errors.Is(err, retry.ErrCircuitOpen) {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		return fail(err)
	}

	switch {
	case outcome.Completed && outcome.Confident:
		fmt.Printf("task %s done (confidence %d)\n", outcome.TaskID, outcome.Confidence)
	case outcome.Completed:
		fmt.Printf("task %s done with warnings (confidence %d)\n", outcome.TaskID, outcome.Confidence)
	case outcome.Exhausted:
		fmt.Printf("task %s failed in phase %s, left for recovery\n", outcome.TaskID, outcome.FailedPhase)
	}
	return 0
}

// heartbeat refreshes the task lock until the run finishes.
func (s *session) heartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(s.cfg.Locks.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.locks.Heartbeat(taskID, s.worker)
			if err == nil {
				continue
			}
			// The executor releases the lock on its way out, so a lost
			// lock here usually just means the run already finished.
			if !errors.Is(err, lock.ErrLockLost) {
				warnStderr(fmt.Sprintf("heartbeat for %s: %v", taskID, err))
			}
			return
		}
	}
}
