package forge

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTag is the tag of tasks whose Runnable reports an empty tag.
const DefaultTag = "default"

// Runnable is the work performed by a Task.
type Runnable interface {
	// Execute performs the work. The returned value is recorded as the
	// task's result on success; a non-nil error fails the task.
	//
	// ctx is canceled if the run is aborted. Execute is never interrupted
	// because another task failed.
	Execute(ctx context.Context) (any, error)

	// Tag returns the name of the worker pool the task runs on. An empty tag
	// selects DefaultTag.
	Tag() string
}

// Func returns a Runnable that runs fn on the pool for tag.
func Func(tag string, fn func(ctx context.Context) (any, error)) Runnable {
	return &funcRunnable{tag: tag, fn: fn}
}

type funcRunnable struct {
	tag string
	fn  func(ctx context.Context) (any, error)
}

func (f *funcRunnable) Execute(ctx context.Context) (any, error) { return f.fn(ctx) }
func (f *funcRunnable) Tag() string                              { return f.tag }

// TaskOption customizes a Task created by NewTask.
type TaskOption func(*Task)

// WithID sets the identity of the task. Tasks without an explicit ID receive
// a random UUID.
func WithID(id string) TaskOption {
	return func(t *Task) { t.id = id }
}

// WithDependencies adds prerequisites to the task.
func WithDependencies(deps ...*Task) TaskOption {
	return func(t *Task) {
		for _, dep := range deps {
			if dep != nil {
				t.deps = append(t.deps, dep.ID())
			}
		}
	}
}

// WithDependencyIDs adds prerequisites to the task by ID.
func WithDependencyIDs(ids ...string) TaskOption {
	return func(t *Task) { t.deps = append(t.deps, ids...) }
}

// Timing holds the timestamps of a task's execution.
type Timing struct {
	Dispatched time.Time // Handed to a worker pool.
	Started    time.Time // Picked up by a worker thread.
	Finished   time.Time // Execute returned.
}

// Task is a unit of work with a fixed set of prerequisites.
//
// Identity, tag, and prerequisites never change after NewTask returns. The
// remaining fields are written only by the Scheduler that owns the task
// during a run and may be read at any time.
type Task struct {
	id       string
	tag      string
	deps     []string
	runnable Runnable

	mut    sync.RWMutex
	owner  *Graph // Graph whose run claimed the task.
	state  State
	result any
	err    error
	cause  *Task
	reason error
	timing Timing
}

// NewTask creates a PENDING task that runs r.
func NewTask(r Runnable, opts ...TaskOption) *Task {
	t := &Task{runnable: r}
	for _, opt := range opts {
		opt(t)
	}

	if t.id == "" {
		t.id = uuid.NewString()
	}
	if r != nil {
		t.tag = r.Tag()
	}
	if t.tag == "" {
		t.tag = DefaultTag
	}

	slices.Sort(t.deps)
	t.deps = slices.Compact(t.deps)
	return t
}

// ID returns the task's identity.
func (t *Task) ID() string { return t.id }

// Tag returns the worker pool the task runs on.
func (t *Task) Tag() string { return t.tag }

// Dependencies returns the sorted IDs of the task's prerequisites.
func (t *Task) Dependencies() []string { return slices.Clone(t.deps) }

// State returns the current state of the task.
func (t *Task) State() State {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.state
}

// Result returns the value produced by a SUCCEEDED task, or nil.
func (t *Task) Result() any {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.result
}

// Err returns the [*ExecutionError] of a FAILED task, or nil.
func (t *Task) Err() error {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.err
}

// Cause returns the task whose failure led to this task being CANCELED. The
// cause is the failed task at the root of the cascade, not the immediate
// prerequisite. Cause returns nil for tasks that were not canceled by a
// failure.
func (t *Task) Cause() *Task {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.cause
}

// CancelReason returns why a CANCELED task was canceled: an error matching
// ErrUpstreamFailed or ErrAborted. CancelReason returns nil for tasks in
// other states.
func (t *Task) CancelReason() error {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.reason
}

// Timing returns the execution timestamps of the task. Fields are zero for
// stages the task never reached.
func (t *Task) Timing() Timing {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.timing
}

func (t *Task) String() string {
	return fmt.Sprintf("Task(id=%s, tag=%s, state=%s, dependencies=%v)", t.id, t.tag, t.State(), t.deps)
}

func (t *Task) execute(ctx context.Context) (any, error) {
	if t.runnable == nil {
		return nil, fmt.Errorf("task %s has nothing to run", t.id)
	}
	return t.runnable.Execute(ctx)
}

func (t *Task) claim(g *Graph) error {
	t.mut.Lock()
	defer t.mut.Unlock()

	switch {
	case t.owner != nil && t.owner != g:
		return fmt.Errorf("%w: task %s was claimed by another graph", ErrGraphReused, t.id)
	case t.state != StatePending:
		return fmt.Errorf("%w: task %s is %s", ErrGraphReused, t.id, t.state)
	}
	t.owner = g
	return nil
}

func (t *Task) release(g *Graph) {
	t.mut.Lock()
	defer t.mut.Unlock()
	if t.owner == g {
		t.owner = nil
	}
}

// setState moves the task to next. It returns an error without modifying the
// task if the transition is not allowed.
func (t *Task) setState(next State) (prev State, err error) {
	t.mut.Lock()
	defer t.mut.Unlock()

	prev = t.state
	if !prev.canTransition(next) {
		return prev, fmt.Errorf("invalid transition for task %s: %s -> %s", t.id, prev, next)
	}
	t.state = next
	return prev, nil
}

func (t *Task) recordOutcome(result any, err error) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.result, t.err = result, err
}

func (t *Task) recordCancel(cause *Task, reason error) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.cause, t.reason = cause, reason
}

func (t *Task) recordDispatch(at time.Time) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.timing.Dispatched = at
}

func (t *Task) recordExecution(started, finished time.Time) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.timing.Started, t.timing.Finished = started, finished
}
