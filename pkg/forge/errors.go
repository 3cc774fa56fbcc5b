package forge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle is matched by a [*CycleError].
	ErrCycle = errors.New("dependency cycle")

	// ErrUnknownDependency is matched by an [*UnknownDependencyError].
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDuplicateTask is matched by a [*DuplicateTaskError].
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrInvalidConfig is returned for configurations that could never make
	// progress, such as a tag with zero workers.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGraphReused is returned when running a Graph that has already been
	// run. Task states are never reset.
	ErrGraphReused = errors.New("graph has already been run")

	// ErrUpstreamFailed is the cancellation reason of tasks canceled because
	// a prerequisite failed or was canceled.
	ErrUpstreamFailed = errors.New("prerequisite did not succeed")

	// ErrAborted is the cancellation reason of tasks canceled because the
	// run's context was canceled. It is also returned by a run that was
	// aborted.
	ErrAborted = errors.New("run aborted")

	// ErrRunFailed is returned by a strict run in which at least one task did
	// not succeed.
	ErrRunFailed = errors.New("run failed")
)

// CycleError reports that the prerequisite relation contains a cycle.
type CycleError struct {
	// Path holds the task IDs on the cycle. The first and last element are
	// the same task.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// UnknownDependencyError reports that a task names a prerequisite missing
// from the task set.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s: task %s depends on %s, which is not part of the task set", ErrUnknownDependency, e.TaskID, e.DependencyID)
}

func (e *UnknownDependencyError) Is(target error) bool { return target == ErrUnknownDependency }

// DuplicateTaskError reports that two tasks in a set share an ID.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateTask, e.TaskID)
}

func (e *DuplicateTaskError) Is(target error) bool { return target == ErrDuplicateTask }

// ExecutionError is recorded on a task whose Execute returned an error.
type ExecutionError struct {
	TaskID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
