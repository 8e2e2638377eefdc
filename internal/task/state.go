package task

import "fmt"

// State labels the lifecycle state container for a task.
type State string

const (
	// StateBlocked indicates the task is waiting on unmet dependencies.
	StateBlocked State = "blocked"
	// StateTodo indicates the task is ready to be picked up.
	StateTodo State = "todo"
	// StateDoing indicates the task is assigned to a worker.
	StateDoing State = "doing"
	// StateDone indicates the task completed the full pipeline.
	StateDone State = "done"
)

// States returns every lifecycle state in container order.
func States() []State {
	return []State{StateBlocked, StateTodo, StateDoing, StateDone}
}

// allowedTransitions defines the permitted lifecycle state changes.
var allowedTransitions = map[State]map[State]struct{}{
	StateBlocked: {
		StateTodo: {},
	},
	StateTodo: {
		StateDoing:   {},
		StateBlocked: {},
	},
	StateDoing: {
		StateDone: {},
		StateTodo: {},
	},
	StateDone: {},
}

// ParseState resolves a lifecycle state from its container name.
func ParseState(raw string) (State, error) {
	state := State(raw)
	switch state {
	case StateBlocked, StateTodo, StateDoing, StateDone:
		return state, nil
	}
	return "", fmt.Errorf("unknown task state %q", raw)
}

// IsValidTransition reports whether the lifecycle allows the requested change.
func IsValidTransition(from State, to State) bool {
	if from == "" || to == "" {
		return false
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// ValidateTransition returns an error when a lifecycle change is not allowed.
func ValidateTransition(from State, to State) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("invalid task state transition from %q to %q", from, to)
	}
	return nil
}
