package forge

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// recorder collects observed transitions.
type recorder struct {
	mut    sync.Mutex
	events []string
}

func (r *recorder) observe(t *Task, from, to State) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s: %s -> %s", t.ID(), from, to))
}

func (r *recorder) Events() []string {
	r.mut.Lock()
	defer r.mut.Unlock()
	return append([]string(nil), r.events...)
}

func newScheduler(t *testing.T, g *Graph, observer Observer) *Scheduler {
	t.Helper()

	s, err := NewScheduler(g, observer)
	require.NoError(t, err)
	return s
}

// runAndComplete moves t to RUNNING and completes it with err.
func runAndComplete(t *testing.T, s *Scheduler, task *Task, err error) []*Task {
	t.Helper()

	require.NoError(t, s.MarkRunning(task))
	ready, completeErr := s.Complete(task, task.ID()+" result", err)
	require.NoError(t, completeErr)
	return ready
}

func TestScheduler(t *testing.T) {
	t.Run("Roots start ready and the rest pending", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "cpu", a)
		c := newTestTask("c", "io")

		var rec recorder
		s := newScheduler(t, mustBuild(t, a, b, c), rec.observe)

		require.Equal(t, []string{"a", "c"}, taskIDs(s.InitialReadySet()))
		require.Equal(t, StateReady, a.State())
		require.Equal(t, StatePending, b.State())
		require.Equal(t, 3, s.Remaining())
		require.Equal(t, []string{"a: pending -> ready", "c: pending -> ready"}, rec.Events())
	})

	t.Run("Dependent becomes ready once all prerequisites succeed", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io", a)
		c := newTestTask("c", "io", a)
		d := newTestTask("d", "cpu", b, c)

		s := newScheduler(t, mustBuild(t, a, b, c, d), nil)

		require.Equal(t, []string{"b", "c"}, taskIDs(runAndComplete(t, s, a, nil)))
		require.Equal(t, "a result", a.Result())

		require.Empty(t, runAndComplete(t, s, b, nil))
		require.Equal(t, StatePending, d.State())

		require.Equal(t, []string{"d"}, taskIDs(runAndComplete(t, s, c, nil)))
		require.Equal(t, StateReady, d.State())

		require.Empty(t, runAndComplete(t, s, d, nil))
		require.Zero(t, s.Remaining())
	})

	t.Run("Concurrent completions make a dependent ready exactly once", func(t *testing.T) {
		const prerequisites = 64

		var (
			roots []*Task
			ready atomic.Int64
			wg    sync.WaitGroup
		)
		for i := range prerequisites {
			roots = append(roots, newTestTask(fmt.Sprintf("root-%d", i), fmt.Sprintf("tag-%d", i%4)))
		}
		join := newTestTask("join", "cpu", roots...)

		s := newScheduler(t, mustBuild(t, append(roots, join)...), nil)
		for _, root := range roots {
			require.NoError(t, s.MarkRunning(root))
		}

		start := make(chan struct{})
		for _, root := range roots {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start

				next, err := s.Complete(root, nil, nil)
				if err == nil {
					ready.Add(int64(len(next)))
				}
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, ready.Load())
		require.Equal(t, StateReady, join.State())
		require.Equal(t, 1, s.Remaining())
	})

	t.Run("Failure cancels every transitive dependent", func(t *testing.T) {
		read := newTestTask("read", "io")
		process := newTestTask("process", "cpu", read)
		compress := newTestTask("compress", "io", process)
		index := newTestTask("index", "cpu", process)
		unrelated := newTestTask("unrelated", "io")

		var rec recorder
		s := newScheduler(t, mustBuild(t, read, process, compress, index, unrelated), rec.observe)

		errRead := errors.New("disk on fire")
		require.Empty(t, runAndComplete(t, s, read, errRead))

		require.Equal(t, StateFailed, read.State())
		require.ErrorIs(t, read.Err(), errRead)
		require.Nil(t, read.Result())

		for _, task := range []*Task{process, compress, index} {
			require.Equal(t, StateCanceled, task.State(), task.ID())
			require.Same(t, read, task.Cause(), "cause of %s must be the failed root", task.ID())
			require.ErrorIs(t, task.CancelReason(), ErrUpstreamFailed)
		}

		require.Equal(t, StateReady, unrelated.State())
		require.Equal(t, 1, s.Remaining())

		require.Contains(t, rec.Events(), "compress: pending -> canceled")
		require.Contains(t, rec.Events(), "index: pending -> canceled")
	})

	t.Run("Failure of one prerequisite cancels a ready sibling branch join", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io")
		join := newTestTask("join", "cpu", a, b)

		s := newScheduler(t, mustBuild(t, a, b, join), nil)

		require.Empty(t, runAndComplete(t, s, a, nil))
		require.Empty(t, runAndComplete(t, s, b, errors.New("boom")))

		require.Equal(t, StateCanceled, join.State())
		require.Same(t, b, join.Cause())
		require.Zero(t, s.Remaining())
	})

	t.Run("Terminal deliveries are idempotent", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io", a)
		c := newTestTask("c", "io", a)
		d := newTestTask("d", "io", b, c)

		var rec recorder
		s := newScheduler(t, mustBuild(t, a, b, c, d), rec.observe)

		require.Len(t, runAndComplete(t, s, a, nil), 2)
		require.Empty(t, runAndComplete(t, s, b, nil))

		before := rec.Events()
		for range 3 {
			require.Empty(t, s.OnTaskTerminal(a))
			require.Empty(t, s.OnTaskTerminal(b))
		}
		require.Equal(t, before, rec.Events())
		require.Equal(t, StatePending, d.State(), "d must still wait for c")
		require.Equal(t, 2, s.Remaining())

		require.Equal(t, []string{"d"}, taskIDs(runAndComplete(t, s, c, nil)))
	})

	t.Run("Non-terminal deliveries are ignored", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io", a)

		s := newScheduler(t, mustBuild(t, a, b), nil)
		require.Empty(t, s.OnTaskTerminal(a))
		require.Equal(t, StatePending, b.State())
	})

	t.Run("Outcome is propagated once", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io", a)

		var rec recorder
		s := newScheduler(t, mustBuild(t, a, b), rec.observe)

		require.Equal(t, []string{"b"}, taskIDs(runAndComplete(t, s, a, nil)))
		events := rec.Events()

		require.Empty(t, s.OnTaskTerminal(a))
		require.Equal(t, events, rec.Events())
	})

	t.Run("Tasks that are not pending are rejected", func(t *testing.T) {
		a := newTestTask("a", "io")
		g := mustBuild(t, a)
		newScheduler(t, g, nil)

		_, err := NewScheduler(g, nil)
		require.ErrorIs(t, err, ErrGraphReused)
		require.Equal(t, StateReady, a.State())
	})

	t.Run("Complete rejects tasks that are not running", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io", a)

		s := newScheduler(t, mustBuild(t, a, b), nil)

		_, err := s.Complete(a, nil, nil)
		require.Error(t, err)
		require.Equal(t, StateReady, a.State())

		require.Error(t, s.MarkRunning(b), "pending tasks cannot run")

		runAndComplete(t, s, a, nil)
		_, err = s.Complete(a, nil, nil)
		require.Error(t, err, "terminal tasks cannot complete twice")
		require.Equal(t, StateSucceeded, a.State())
	})

	t.Run("Abort cancels tasks that were not dispatched", func(t *testing.T) {
		a := newTestTask("a", "io")
		b := newTestTask("b", "io")
		c := newTestTask("c", "cpu", a)

		s := newScheduler(t, mustBuild(t, a, b, c), nil)
		require.NoError(t, s.MarkRunning(a))

		errReason := fmt.Errorf("%w: shutting down", ErrAborted)
		canceled := s.Abort(errReason)

		require.Equal(t, []string{"b", "c"}, taskIDs(canceled))
		require.Equal(t, StateRunning, a.State())
		for _, task := range canceled {
			require.Equal(t, StateCanceled, task.State())
			require.ErrorIs(t, task.CancelReason(), ErrAborted)
			require.Nil(t, task.Cause())
		}
		require.Equal(t, 1, s.Remaining())

		// The running task still finishes normally.
		require.Empty(t, runAndCompleteRunning(t, s, a))
		require.Equal(t, StateSucceeded, a.State())
		require.Zero(t, s.Remaining())
	})
}

func runAndCompleteRunning(t *testing.T, s *Scheduler, task *Task) []*Task {
	t.Helper()

	ready, err := s.Complete(task, nil, nil)
	require.NoError(t, err)
	return ready
}
