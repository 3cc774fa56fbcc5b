package forge

import (
	"fmt"
	"sync"
)

// Observer is notified of every task state transition. Observers are called
// in transition order, never while the Scheduler holds its lock.
type Observer func(t *Task, from, to State)

type transition struct {
	task     *Task
	from, to State
}

// Scheduler owns the state transitions of the tasks in a Graph. It tracks the
// number of unresolved prerequisites of every task, decides when a task
// becomes READY, and cascades cancellation to the transitive dependents of
// tasks that fail or are canceled.
//
// Scheduler is safe for concurrent use. Completions reported concurrently for
// different prerequisites of the same task make that task READY exactly
// once.
type Scheduler struct {
	graph    *Graph
	observer Observer

	mut        sync.Mutex
	unresolved map[*Task]int
	delivered  map[*Task]struct{} // Terminal tasks whose outcome was propagated.
	remaining  int                // Tasks not yet in a terminal state.
}

// NewScheduler creates a Scheduler for g. Tasks without prerequisites are
// moved to READY immediately. NewScheduler returns an error wrapping
// ErrGraphReused if any task of g is not PENDING.
func NewScheduler(g *Graph, observer Observer) (*Scheduler, error) {
	s := &Scheduler{
		graph:    g,
		observer: observer,

		unresolved: make(map[*Task]int, g.Len()),
		delivered:  make(map[*Task]struct{}, g.Len()),
		remaining:  g.Len(),
	}

	var events []transition

	s.mut.Lock()
	for _, t := range g.tasks {
		if state := t.State(); state != StatePending {
			s.mut.Unlock()
			return nil, fmt.Errorf("%w: task %s is %s", ErrGraphReused, t.ID(), state)
		}
		s.unresolved[t] = len(g.PrerequisitesOf(t))
	}
	for _, t := range g.InitialReadySet() {
		events = s.transition(events, t, StateReady)
	}
	s.mut.Unlock()

	s.notify(events)
	return s, nil
}

// InitialReadySet returns the tasks that were READY when the Scheduler was
// created and have not been dispatched or canceled since.
func (s *Scheduler) InitialReadySet() []*Task {
	var ready []*Task
	for _, t := range s.graph.InitialReadySet() {
		if t.State() == StateReady {
			ready = append(ready, t)
		}
	}
	return ready
}

// Remaining returns the number of tasks that have not reached a terminal
// state.
func (s *Scheduler) Remaining() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.remaining
}

// MarkRunning moves a READY task to RUNNING. MarkRunning must be called
// before the task is handed to a worker.
func (s *Scheduler) MarkRunning(t *Task) error {
	s.mut.Lock()
	if _, err := t.setState(StateRunning); err != nil {
		s.mut.Unlock()
		return err
	}
	s.mut.Unlock()

	s.notify([]transition{{task: t, from: StateReady, to: StateRunning}})
	return nil
}

// Complete records the outcome of a RUNNING task and hands it to
// OnTaskTerminal. A nil err moves the task to SUCCEEDED with result;
// otherwise the task moves to FAILED with err recorded.
//
// Complete returns the dependents that became READY.
func (s *Scheduler) Complete(t *Task, result any, err error) ([]*Task, error) {
	next := StateSucceeded
	if err != nil {
		next, result = StateFailed, nil
	}

	s.mut.Lock()
	if state := t.State(); state != StateRunning {
		s.mut.Unlock()
		return nil, fmt.Errorf("cannot complete task %s: task is %s", t.ID(), state)
	}
	t.recordOutcome(result, err)
	events := s.transition(nil, t, next)
	s.mut.Unlock()

	s.notify(events)
	return s.OnTaskTerminal(t), nil
}

// OnTaskTerminal propagates the outcome of a terminal task to its dependents
// and returns the dependents that became READY. A succeeded task releases
// its dependents; a failed or canceled task cancels its transitive
// dependents.
//
// The outcome of a task is propagated once. Calling OnTaskTerminal for a task
// that is not terminal, or whose outcome was already propagated, has no
// effect. Tasks canceled by a cascade or by Abort count as propagated.
func (s *Scheduler) OnTaskTerminal(t *Task) []*Task {
	s.mut.Lock()
	ready, events := s.propagate(t, nil)
	s.mut.Unlock()

	s.notify(events)
	return ready
}

// Abort cancels every task that has not been dispatched, recording reason as
// their cancellation reason. RUNNING tasks are unaffected. Abort returns the
// canceled tasks.
func (s *Scheduler) Abort(reason error) []*Task {
	var (
		canceled []*Task
		events   []transition
	)

	s.mut.Lock()
	for _, t := range s.graph.tasks {
		if state := t.State(); state != StatePending && state != StateReady {
			continue
		}
		t.recordCancel(nil, reason)
		events = s.transition(events, t, StateCanceled)
		s.delivered[t] = struct{}{}
		canceled = append(canceled, t)
	}
	s.mut.Unlock()

	s.notify(events)
	return canceled
}

// propagate must be called with s.mut held.
func (s *Scheduler) propagate(t *Task, events []transition) ([]*Task, []transition) {
	state := t.State()
	if !state.Terminal() {
		return nil, events
	}
	if _, done := s.delivered[t]; done {
		return nil, events
	}
	s.delivered[t] = struct{}{}

	if state == StateSucceeded {
		var ready []*Task
		for _, dependent := range s.graph.DependentsOf(t) {
			if dependent.State().Terminal() {
				continue
			}

			s.unresolved[dependent]--
			if s.unresolved[dependent] == 0 && dependent.State() == StatePending {
				events = s.transition(events, dependent, StateReady)
				ready = append(ready, dependent)
			}
		}
		return ready, events
	}

	return nil, s.cascade(t, events)
}

// cascade cancels every non-terminal transitive dependent of t, which must be
// FAILED or CANCELED. Canceled tasks point at the failed task that started
// the cascade.
func (s *Scheduler) cascade(t *Task, events []transition) []transition {
	root := t
	if cause := t.Cause(); cause != nil {
		root = cause
	}
	reason := fmt.Errorf("%w: %s is %s", ErrUpstreamFailed, root.ID(), root.State())

	// A terminal descendant has no runnable descendants of its own: they were
	// canceled along with it.
	for _, dependent := range s.graph.dag.Descendants(t, isTerminal) {
		dependent.recordCancel(root, reason)
		events = s.transition(events, dependent, StateCanceled)
		s.delivered[dependent] = struct{}{}
	}
	return events
}

func isTerminal(t *Task) bool { return t.State().Terminal() }

// transition must be called with s.mut held. Invalid transitions indicate a
// scheduling defect and panic.
func (s *Scheduler) transition(events []transition, t *Task, next State) []transition {
	prev, err := t.setState(next)
	if err != nil {
		panic(err)
	}
	if next.Terminal() {
		s.remaining--
	}
	return append(events, transition{task: t, from: prev, to: next})
}

func (s *Scheduler) notify(events []transition) {
	if s.observer == nil {
		return
	}
	for _, ev := range events {
		s.observer(ev.task, ev.from, ev.to)
	}
}
