package forge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// gauge tracks the number of concurrently running tasks and the highest
// value seen.
type gauge struct {
	current, max atomic.Int64
}

func (g *gauge) enter() {
	n := g.current.Inc()
	for {
		peak := g.max.Load()
		if n <= peak || g.max.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (g *gauge) leave() { g.current.Dec() }

// chains builds n linear read_i -> process_i -> compress_i chains. Tasks
// named in fail return an error.
func chains(n int, gauges map[string]*gauge, fail ...string) []*Task {
	work := func(id, tag string) Runnable {
		return Func(tag, func(context.Context) (any, error) {
			gauges[tag].enter()
			defer gauges[tag].leave()

			time.Sleep(5 * time.Millisecond)
			if slices.Contains(fail, id) {
				return nil, fmt.Errorf("%s failed", id)
			}
			return id, nil
		})
	}

	var tasks []*Task
	for i := 1; i <= n; i++ {
		read := NewTask(work(fmt.Sprintf("read_%d", i), "io"), WithID(fmt.Sprintf("read_%d", i)))
		process := NewTask(work(fmt.Sprintf("process_%d", i), "cpu"), WithID(fmt.Sprintf("process_%d", i)), WithDependencies(read))
		compress := NewTask(work(fmt.Sprintf("compress_%d", i), "io"), WithID(fmt.Sprintf("compress_%d", i)), WithDependencies(process))
		tasks = append(tasks, read, process, compress)
	}
	return tasks
}

func newTestExecutor(t *testing.T, cfg Config, observer Observer) *Executor {
	t.Helper()

	e, err := NewExecutor(ExecutorParams{Config: cfg, Observer: observer})
	require.NoError(t, err)
	return e
}

func TestExecutor_Chains(t *testing.T) {
	t.Run("All chains succeed within per-tag limits", func(t *testing.T) {
		gauges := map[string]*gauge{"io": {}, "cpu": {}}
		tasks := chains(5, gauges)

		var rec recorder
		e := newTestExecutor(t, Config{WorkersPerTag: 2}, rec.observe)

		report, err := e.Run(t.Context(), tasks...)
		require.NoError(t, err)
		require.True(t, report.OK())
		require.Equal(t, 15, report.Succeeded)
		require.NoError(t, report.Err())

		for _, task := range tasks {
			require.Equal(t, StateSucceeded, task.State(), task.ID())
			require.Equal(t, task.ID(), task.Result())
		}

		require.LessOrEqual(t, gauges["io"].max.Load(), int64(2))
		require.LessOrEqual(t, gauges["cpu"].max.Load(), int64(2))

		events := rec.Events()
		for i := 1; i <= 5; i++ {
			requireBefore(t, events, fmt.Sprintf("read_%d: running -> succeeded", i), fmt.Sprintf("process_%d: ready -> running", i))
			requireBefore(t, events, fmt.Sprintf("process_%d: running -> succeeded", i), fmt.Sprintf("compress_%d: ready -> running", i))
		}
	})

	t.Run("Failure cancels only the failed chain", func(t *testing.T) {
		gauges := map[string]*gauge{"io": {}, "cpu": {}}
		tasks := chains(5, gauges, "read_1")

		e := newTestExecutor(t, Config{WorkersPerTag: 2}, nil)

		report, err := e.Run(t.Context(), tasks...)
		require.NoError(t, err, "task failures do not fail a non-strict run")
		require.False(t, report.OK())
		require.Equal(t, 12, report.Succeeded)
		require.Equal(t, 1, report.Failed)
		require.Equal(t, 2, report.Canceled)

		byID := make(map[string]*Task)
		for _, task := range tasks {
			byID[task.ID()] = task
		}

		read1 := byID["read_1"]
		require.Equal(t, StateFailed, read1.State())

		var execErr *ExecutionError
		require.ErrorAs(t, read1.Err(), &execErr)
		require.Equal(t, "read_1", execErr.TaskID)

		for _, id := range []string{"process_1", "compress_1"} {
			require.Equal(t, StateCanceled, byID[id].State(), id)
			require.Same(t, read1, byID[id].Cause(), id)
			require.True(t, byID[id].Timing().Dispatched.IsZero(), "%s must never be dispatched", id)
		}
		for i := 2; i <= 5; i++ {
			for _, stage := range []string{"read", "process", "compress"} {
				id := fmt.Sprintf("%s_%d", stage, i)
				require.Equal(t, StateSucceeded, byID[id].State(), id)
			}
		}

		require.Equal(t, []string{"read_1"}, taskIDs(report.FailedTasks()))
		require.Equal(t, []string{"process_1", "compress_1"}, taskIDs(report.CanceledTasks()))
		require.ErrorContains(t, report.Err(), "read_1 failed")
	})
}

func TestExecutor_TagIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	// The io task only finishes once the cpu task has run, which is only
	// possible if a busy io pool does not hold up the cpu pool.
	release := make(chan struct{})
	slowIO := NewTask(Func("io", func(ctx context.Context) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}), WithID("slow-io"))
	queuedIO := newTestTask("queued-io", "io")
	cpu := NewTask(Func("cpu", func(context.Context) (any, error) {
		close(release)
		return nil, nil
	}), WithID("cpu"))

	e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

	report, err := e.Run(ctx, slowIO, queuedIO, cpu)
	require.NoError(t, err)
	require.True(t, report.OK())
}

func TestExecutor_TagWorkers(t *testing.T) {
	gauges := map[string]*gauge{"io": {}, "cpu": {}}

	var tasks []*Task
	for i := range 12 {
		tag := "io"
		if i%2 == 0 {
			tag = "cpu"
		}
		tasks = append(tasks, NewTask(Func(tag, func(context.Context) (any, error) {
			gauges[tag].enter()
			defer gauges[tag].leave()
			time.Sleep(10 * time.Millisecond)
			return nil, nil
		})))
	}

	e := newTestExecutor(t, Config{WorkersPerTag: 3, TagWorkers: map[string]int{"cpu": 1}}, nil)

	report, err := e.Run(t.Context(), tasks...)
	require.NoError(t, err)
	require.Equal(t, 12, report.Succeeded)
	require.LessOrEqual(t, gauges["io"].max.Load(), int64(3))
	require.Equal(t, int64(1), gauges["cpu"].max.Load())
}

func TestExecutor_Strict(t *testing.T) {
	errBoom := errors.New("boom")

	newTasks := func() []*Task {
		a := NewTask(Func("io", func(context.Context) (any, error) { return nil, errBoom }), WithID("a"))
		b := newTestTask("b", "io", a)
		return []*Task{a, b}
	}

	t.Run("Failures are returned in strict mode", func(t *testing.T) {
		e := newTestExecutor(t, Config{WorkersPerTag: 1, Strict: true}, nil)

		report, err := e.Run(t.Context(), newTasks()...)
		require.ErrorIs(t, err, ErrRunFailed)
		require.ErrorContains(t, err, "boom")
		require.NotNil(t, report)
		require.Equal(t, 1, report.Failed)
		require.Equal(t, 1, report.Canceled)
	})

	t.Run("Successful strict runs return no error", func(t *testing.T) {
		e := newTestExecutor(t, Config{WorkersPerTag: 1, Strict: true}, nil)

		_, err := e.Run(t.Context(), newTestTask("a", "io"))
		require.NoError(t, err)
	})
}

func TestExecutor_Panic(t *testing.T) {
	a := NewTask(Func("cpu", func(context.Context) (any, error) { panic("bad input") }), WithID("a"))
	b := newTestTask("b", "cpu", a)
	c := newTestTask("c", "cpu")

	e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

	report, err := e.Run(t.Context(), a, b, c)
	require.NoError(t, err)
	require.Equal(t, StateFailed, a.State())
	require.ErrorContains(t, a.Err(), "bad input")
	require.Equal(t, StateCanceled, b.State())
	require.Equal(t, StateSucceeded, c.State())
	require.Equal(t, 1, report.Succeeded)
}

func TestExecutor_Abort(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	started := make(chan struct{})
	blocking := NewTask(Func("io", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithID("blocking"))
	dependent := newTestTask("dependent", "cpu", blocking)
	queued := newTestTask("queued", "io")

	go func() {
		<-started
		cancel()
	}()

	var executed atomic.Bool
	never := NewTask(Func("cpu", func(context.Context) (any, error) {
		executed.Store(true)
		return nil, nil
	}), WithID("never"), WithDependencies(queued))

	e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

	report, err := e.Run(ctx, blocking, dependent, queued, never)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	// The in-flight task ran to completion with a canceled context.
	require.Equal(t, StateFailed, blocking.State())
	require.ErrorIs(t, blocking.Err(), context.Canceled)

	require.Equal(t, StateCanceled, dependent.State())
	require.False(t, executed.Load())
	require.Equal(t, StateCanceled, never.State())
	for _, task := range report.Tasks {
		require.True(t, task.State().Terminal(), task.ID())
	}
}

func TestExecutor_GraphReuse(t *testing.T) {
	e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

	a := newTestTask("a", "io")
	g := mustBuild(t, a)

	_, err := e.RunGraph(t.Context(), g)
	require.NoError(t, err)

	_, err = e.RunGraph(t.Context(), g)
	require.ErrorIs(t, err, ErrGraphReused)

	_, err = e.Run(t.Context(), a)
	require.ErrorIs(t, err, ErrGraphReused, "finished tasks cannot be run again")
}

func TestExecutor_SharedTasks(t *testing.T) {
	t.Run("Second graph over finished tasks", func(t *testing.T) {
		e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

		a := newTestTask("a", "io")
		first, second := mustBuild(t, a), mustBuild(t, a)

		_, err := e.RunGraph(t.Context(), first)
		require.NoError(t, err)

		require.NotPanics(t, func() {
			report, err := e.RunGraph(t.Context(), second)
			require.ErrorIs(t, err, ErrGraphReused)
			require.Nil(t, report)
		})
		require.Equal(t, StateSucceeded, a.State())
	})

	t.Run("Second graph while the first is running", func(t *testing.T) {
		e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

		var (
			started = make(chan struct{})
			release = make(chan struct{})
		)
		a := NewTask(Func("io", func(context.Context) (any, error) {
			close(started)
			<-release
			return "a", nil
		}), WithID("a"))
		b := newTestTask("b", "cpu", a)
		first, second := mustBuild(t, a, b), mustBuild(t, a, b)

		done := make(chan error, 1)
		go func() {
			_, err := e.RunGraph(t.Context(), first)
			done <- err
		}()
		<-started

		_, err := e.RunGraph(t.Context(), second)
		require.ErrorIs(t, err, ErrGraphReused)

		close(release)
		require.NoError(t, <-done)
		require.Equal(t, StateSucceeded, b.State())
	})

	t.Run("Failed claim can be retried", func(t *testing.T) {
		e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

		a, b := newTestTask("a", "io"), newTestTask("b", "io")
		other := mustBuild(t, b)
		g := mustBuild(t, a, b)

		_, err := e.RunGraph(t.Context(), other)
		require.NoError(t, err)

		_, err = e.RunGraph(t.Context(), g)
		require.ErrorIs(t, err, ErrGraphReused)
		require.Equal(t, StatePending, a.State())

		// a was released when b could not be claimed.
		_, err = e.Run(t.Context(), a)
		require.NoError(t, err)
		require.Equal(t, StateSucceeded, a.State())
	})
}

func TestExecutor_BuildErrors(t *testing.T) {
	var executed atomic.Int64
	counting := func(id string, deps ...string) *Task {
		return NewTask(Func("io", func(context.Context) (any, error) {
			executed.Inc()
			return nil, nil
		}), WithID(id), WithDependencyIDs(deps...))
	}

	e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

	_, err := e.Run(t.Context(), counting("a", "b"), counting("b", "a"), counting("c"))
	require.ErrorIs(t, err, ErrCycle)

	_, err = e.Run(t.Context(), counting("a", "missing"))
	require.ErrorIs(t, err, ErrUnknownDependency)

	require.Zero(t, executed.Load(), "no task may run when the graph is invalid")
}

func TestExecutor_EmptyRun(t *testing.T) {
	e := newTestExecutor(t, Config{WorkersPerTag: 1}, nil)

	report, err := e.Run(t.Context())
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Empty(t, report.Tasks)
}

func TestExecutor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := quartz.NewMock(t)

	e, err := NewExecutor(ExecutorParams{
		Config:     Config{WorkersPerTag: 1},
		Registerer: reg,
		Clock:      clock,
	})
	require.NoError(t, err)

	a := NewTask(Func("io", func(context.Context) (any, error) { return nil, errors.New("fail") }), WithID("a"))
	b := newTestTask("b", "io", a)
	c := newTestTask("c", "cpu")

	report, err := e.Run(t.Context(), a, b, c)
	require.NoError(t, err)

	require.Equal(t, clock.Now(), report.Started)
	require.Equal(t, clock.Now(), report.Finished)
	require.Zero(t, report.Duration())
	require.Equal(t, clock.Now(), c.Timing().Dispatched)
	require.Equal(t, clock.Now(), c.Timing().Finished)

	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.tasksTotal.WithLabelValues("ready")))
	require.Equal(t, 2.0, testutil.ToFloat64(e.metrics.tasksTotal.WithLabelValues("running")))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.tasksTotal.WithLabelValues("succeeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.tasksTotal.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.tasksTotal.WithLabelValues("canceled")))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.runsTotal.WithLabelValues("failure")))

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	require.Contains(t, names, "taskforge_executor_runs_total")
	require.Contains(t, names, "taskforge_worker_task_exec_seconds")
}

func TestNewExecutor_InvalidConfig(t *testing.T) {
	_, err := NewExecutor(ExecutorParams{Config: Config{WorkersPerTag: 0}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewExecutor(ExecutorParams{Config: Config{WorkersPerTag: 1, TagWorkers: map[string]int{"io": 0}}})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

// requireBefore asserts that first is observed before second.
func requireBefore(t *testing.T, events []string, first, second string) {
	t.Helper()

	i, j := slices.Index(events, first), slices.Index(events, second)
	require.NotEqual(t, -1, i, "missing event %q", first)
	require.NotEqual(t, -1, j, "missing event %q", second)
	require.Less(t, i, j, "%q must happen before %q", first, second)
}
