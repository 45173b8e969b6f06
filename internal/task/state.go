package task

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// State represents the execution state of a task within a refresh cycle.
type State int32

const (
	// Pending is the initial state: not yet evaluated in this cycle.
	Pending State = iota
	// Stale means selected for execution in the current run.
	Stale
	// Queued means every upstream task in the run is done.
	Queued
	// Running means a worker slot holds the task.
	Running
	// Done means the body finished successfully.
	Done
	// Failed means the body or the backend reported failure.
	Failed
	// Skipped means the task was never started because an upstream task
	// failed or the run was cancelled.
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Stale:
		return "stale"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether s ends a task's part in a run.
func (s State) IsTerminal() bool {
	return s == Done || s == Failed || s == Skipped
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	Stale:   {Queued, Skipped},
	Queued:  {Running, Skipped},
	Running: {Done, Failed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	// any state may be re-selected for a new run
	return to == Stale && from != Running && from != Queued
}
