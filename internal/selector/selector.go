// Package selector picks the next task for a worker to execute.
package selector

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/audit"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/lock"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
)

// Prompter confirms whether an orphaned task should be resumed.
type Prompter interface {
	// ConfirmResume reports whether the worker should take over the
	// orphaned task last held by holder.
	ConfirmResume(id task.ID, holder string) bool
}

// Selector implements the per-invocation work selection pass:
// resume the worker's own in-progress task, promote blocked tasks whose
// blockers finished, claim a ready todo task, recover an orphaned doing
// task, or report no work.
type Selector struct {
	store      task.Store
	locks      lock.Manager
	logger     *audit.Logger
	worker     string
	autoResume bool
	prompter   Prompter
	now        func() time.Time
}

// New builds a selector for one worker. The prompter may be nil for
// non-interactive runs; orphans are then resumed without asking.
func New(store task.Store, locks lock.Manager, logger *audit.Logger, worker string, autoResume bool, prompter Prompter) Selector {
	return Selector{
		store:      store,
		locks:      locks,
		logger:     logger,
		worker:     worker,
		autoResume: autoResume,
		prompter:   prompter,
		now:        time.Now,
	}
}

// Next returns the task this worker should execute, or nil when no
// work is available. Losing an acquisition race to another worker is
// never an error; the pass simply continues to the next candidate.
func (selector Selector) Next() (*task.Record, error) {
	if record, err := selector.resumeOwn(); record != nil || err != nil {
		return record, err
	}
	if err := selector.promoteBlocked(); err != nil {
		return nil, err
	}
	if record, err := selector.claimTodo(); record != nil || err != nil {
		return record, err
	}
	return selector.recoverOrphan()
}

// resumeOwn returns the worker's own in-progress task when one exists.
func (selector Selector) resumeOwn() (*task.Record, error) {
	records, err := selector.store.List(task.StateDoing)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		held, err := selector.locks.Held(record.ID.String(), selector.worker)
		if err != nil {
			return nil, err
		}
		if !held {
			continue
		}
		// Refresh the heartbeat so the resumed run starts fresh.
		if _, err := selector.locks.TryAcquire(record.ID.String(), selector.worker); err != nil {
			return nil, err
		}
		record := record
		return &record, nil
	}
	return nil, nil
}

// promoteBlocked moves blocked tasks whose blockers have all finished
// into todo so the claim pass can see them.
func (selector Selector) promoteBlocked() error {
	records, err := selector.store.List(task.StateBlocked)
	if err != nil {
		return err
	}
	for _, record := range records {
		ready, err := selector.dependenciesSatisfied(record)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		if err := selector.store.Move(record.ID, task.StateBlocked, task.StateTodo); err != nil {
			// Another worker promoted it between the listing and the move.
			if errors.Is(err, task.ErrNotFound) || errors.Is(err, task.ErrAlreadyExists) {
				continue
			}
			return err
		}
		promoted, err := selector.store.ReadIn(task.StateTodo, record.ID)
		if err != nil {
			return err
		}
		promoted.AppendLog(selector.now(), "all blockers done, promoted to todo")
		if err := selector.store.Write(promoted); err != nil {
			return err
		}
		selector.auditTransition(record.ID, task.StateBlocked, task.StateTodo)
	}
	return nil
}

// claimTodo claims the first ready todo task in priority order.
func (selector Selector) claimTodo() (*task.Record, error) {
	records, err := selector.store.List(task.StateTodo)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		ready, err := selector.dependenciesSatisfied(record)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}

		acquired, err := selector.locks.TryAcquire(record.ID.String(), selector.worker)
		if err != nil {
			return nil, err
		}
		if !acquired {
			continue
		}

		// Another worker may have moved the task between the listing
		// and the acquisition. Verify before transitioning.
		state, err := selector.store.Locate(record.ID)
		if err != nil || state != task.StateTodo {
			releaseErr := selector.locks.Release(record.ID.String(), selector.worker)
			if err != nil {
				return nil, err
			}
			if releaseErr != nil {
				return nil, releaseErr
			}
			continue
		}

		if err := selector.store.Move(record.ID, task.StateTodo, task.StateDoing); err != nil {
			if releaseErr := selector.locks.Release(record.ID.String(), selector.worker); releaseErr != nil {
				return nil, releaseErr
			}
			return nil, err
		}

		claimed, err := selector.assign(record.ID, fmt.Sprintf("claimed by %s", selector.worker))
		if err != nil {
			return nil, err
		}
		selector.auditLock(audit.EventLockAcquire, record.ID)
		selector.auditTransition(record.ID, task.StateTodo, task.StateDoing)
		return claimed, nil
	}
	return nil, nil
}

// recoverOrphan scans doing tasks whose lock is absent or stale.
func (selector Selector) recoverOrphan() (*task.Record, error) {
	records, err := selector.store.List(task.StateDoing)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		lockRecord, exists, err := selector.locks.Read(record.ID.String())
		if err != nil {
			return nil, err
		}
		if exists && !lock.IsStale(lockRecord, selector.now(), selector.locks.StaleAfter()) {
			continue
		}

		if !selector.shouldResume(record.ID, lockRecord.Worker) {
			if err := selector.decline(record); err != nil {
				return nil, err
			}
			continue
		}

		acquired, err := selector.locks.TryAcquire(record.ID.String(), selector.worker)
		if err != nil {
			return nil, err
		}
		if !acquired {
			continue
		}

		resumed, err := selector.assign(record.ID, fmt.Sprintf("orphan resumed by %s", selector.worker))
		if err != nil {
			return nil, err
		}
		selector.auditLock(audit.EventLockReclaim, record.ID)
		selector.auditEvent(audit.EventOrphanResume, record.ID)
		return resumed, nil
	}
	return nil, nil
}

// shouldResume applies the orphan policy: auto-resume and prompterless
// runs take the task; otherwise the prompter decides, defaulting to
// resume on timeout.
func (selector Selector) shouldResume(id task.ID, holder string) bool {
	if selector.autoResume || selector.prompter == nil {
		return true
	}
	return selector.prompter.ConfirmResume(id, holder)
}

// decline returns an orphaned task to todo with its assignment cleared.
func (selector Selector) decline(record task.Record) error {
	if err := selector.store.Move(record.ID, task.StateDoing, task.StateTodo); err != nil {
		return err
	}
	returned, err := selector.store.ReadIn(task.StateTodo, record.ID)
	if err != nil {
		return err
	}
	returned.ClearAssignment()
	returned.AppendLog(selector.now(), fmt.Sprintf("orphan resume declined by %s, returned to todo", selector.worker))
	if err := selector.store.Write(returned); err != nil {
		return err
	}
	selector.auditEvent(audit.EventOrphanDecline, record.ID)
	selector.auditTransition(record.ID, task.StateDoing, task.StateTodo)
	return nil
}

// assign records the worker assignment on a doing task.
func (selector Selector) assign(id task.ID, note string) (*task.Record, error) {
	record, err := selector.store.ReadIn(task.StateDoing, id)
	if err != nil {
		return nil, err
	}
	record.Assign(selector.worker, selector.now())
	record.AppendLog(selector.now(), note)
	if err := selector.store.Write(record); err != nil {
		return nil, err
	}
	return &record, nil
}

// dependenciesSatisfied reports whether every blocking task is done.
// A blocker that no longer exists in any container is treated as done.
func (selector Selector) dependenciesSatisfied(record task.Record) (bool, error) {
	for _, blocker := range record.Meta.BlockedBy {
		id, err := task.ParseID(blocker)
		if err != nil {
			return false, fmt.Errorf("task %s: invalid blocker %q: %w", record.ID, blocker, err)
		}
		state, err := selector.store.Locate(id)
		if err != nil {
			if errors.Is(err, task.ErrNotFound) {
				continue
			}
			return false, err
		}
		if state != task.StateDone {
			return false, nil
		}
	}
	return true, nil
}

func (selector Selector) auditLock(event string, id task.ID) {
	if selector.logger == nil {
		return
	}
	_ = selector.logger.LogLock(event, id.String(), selector.worker)
}

func (selector Selector) auditTransition(id task.ID, from task.State, to task.State) {
	if selector.logger == nil {
		return
	}
	_ = selector.logger.LogTransition(id.String(), selector.worker, string(from), string(to))
}

func (selector Selector) auditEvent(event string, id task.ID) {
	if selector.logger == nil {
		return
	}
	_ = selector.logger.Log(audit.Entry{TaskID: id.String(), Worker: selector.worker, Event: event})
}
