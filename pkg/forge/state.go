package forge

import "fmt"

// State is the lifecycle state of a Task.
type State int

const (
	// StatePending reports that a task has prerequisites which have not yet
	// succeeded.
	StatePending State = iota

	// StateReady reports that every prerequisite succeeded and the task may
	// be dispatched.
	StateReady

	// StateRunning reports that the task is executing on a worker.
	StateRunning

	// StateSucceeded reports that the task finished without error.
	StateSucceeded

	// StateFailed reports that the task returned an error.
	StateFailed

	// StateCanceled reports that the task will never run because a
	// prerequisite failed or was canceled, or because the run was aborted.
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Terminal returns true if s is a terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// canTransition reports whether a task may move from s to next.
func (s State) canTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateReady || next == StateCanceled
	case StateReady:
		return next == StateRunning || next == StateCanceled
	case StateRunning:
		return next == StateSucceeded || next == StateFailed
	default:
		return false
	}
}
