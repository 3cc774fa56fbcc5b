package forge

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/atomic"

	"github.com/djordjijek/taskforge/pkg/forge/internal/dag"
)

// Graph is the validated prerequisite structure of a task set. A Graph is
// read-only after Build returns; only the states of its tasks change during a
// run.
type Graph struct {
	tasks []*Task
	byID  map[string]*Task
	tags  []string

	// Edges run from a prerequisite to the task that depends on it.
	dag dag.Graph[*Task]

	claimed atomic.Bool
}

// Build validates tasks and computes the dependents of each task. Build
// returns a [*DuplicateTaskError] if two tasks share an ID, an
// [*UnknownDependencyError] if a task names a prerequisite outside of tasks,
// and a [*CycleError] if the prerequisite relation is cyclic.
func Build(tasks []*Task) (*Graph, error) {
	g := &Graph{byID: make(map[string]*Task, len(tasks))}

	seenTags := make(map[string]struct{})
	for _, t := range tasks {
		if t == nil {
			return nil, errors.New("nil task")
		}
		if _, exist := g.byID[t.ID()]; exist {
			return nil, &DuplicateTaskError{TaskID: t.ID()}
		}
		if state := t.State(); state != StatePending {
			return nil, fmt.Errorf("%w: task %s is %s", ErrGraphReused, t.ID(), state)
		}

		g.byID[t.ID()] = t
		g.tasks = append(g.tasks, t)
		g.dag.Add(t)

		if _, seen := seenTags[t.Tag()]; !seen {
			seenTags[t.Tag()] = struct{}{}
			g.tags = append(g.tags, t.Tag())
		}
	}

	for _, t := range g.tasks {
		for _, depID := range t.deps {
			if depID == t.ID() {
				return nil, &CycleError{Path: []string{t.ID(), t.ID()}}
			}

			dep, found := g.byID[depID]
			if !found {
				return nil, &UnknownDependencyError{TaskID: t.ID(), DependencyID: depID}
			}

			if err := g.dag.AddEdge(dag.Edge[*Task]{Parent: dep, Child: t}); err != nil {
				return nil, err
			}
		}
	}

	if cycle := g.dag.FindCycle(); cycle != nil {
		path := make([]string, 0, len(cycle))
		for _, t := range cycle {
			path = append(path, t.ID())
		}
		return nil, &CycleError{Path: path}
	}

	return g, nil
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.tasks) }

// Tasks returns every task in the order given to Build.
func (g *Graph) Tasks() []*Task { return append([]*Task(nil), g.tasks...) }

// Task looks up a task by ID.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.byID[id]
	return t, ok
}

// Tags returns the distinct tags of the graph's tasks in order of first
// appearance.
func (g *Graph) Tags() []string { return append([]string(nil), g.tags...) }

// InitialReadySet returns every task without prerequisites, in the order
// given to Build.
func (g *Graph) InitialReadySet() []*Task { return g.dag.Roots() }

// DependentsOf returns the tasks that directly name t as a prerequisite.
func (g *Graph) DependentsOf(t *Task) []*Task { return slices.Clone(g.dag.Children(t)) }

// DescendantsOf returns every task that transitively depends on t, in
// depth-first order. Each task is returned once.
func (g *Graph) DescendantsOf(t *Task) []*Task { return g.dag.Descendants(t, nil) }

// Leaves returns every task that no other task depends on, in the order
// given to Build.
func (g *Graph) Leaves() []*Task { return g.dag.Leaves() }

// PrerequisitesOf returns the direct prerequisites of t.
func (g *Graph) PrerequisitesOf(t *Task) []*Task { return slices.Clone(g.dag.Parents(t)) }

// TopologicalOrder returns every task such that each task comes after all of
// its prerequisites.
func (g *Graph) TopologicalOrder() []*Task {
	// Build rejects cyclic graphs, so the order is always complete.
	order, _ := g.dag.TopologicalOrder()
	return order
}

// claim marks the graph and every one of its tasks as owned by a run. claim
// returns an error wrapping ErrGraphReused if the graph was already claimed,
// or if one of its tasks was claimed through another graph or is no longer
// PENDING. A failed claim leaves nothing claimed.
func (g *Graph) claim() error {
	if !g.claimed.CompareAndSwap(false, true) {
		return ErrGraphReused
	}
	for i, t := range g.tasks {
		if err := t.claim(g); err != nil {
			for _, claimed := range g.tasks[:i] {
				claimed.release(g)
			}
			g.claimed.Store(false)
			return err
		}
	}
	return nil
}
