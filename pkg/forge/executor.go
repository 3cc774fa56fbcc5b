package forge

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/djordjijek/taskforge/pkg/forge/internal/worker"
)

// ExecutorParams holds parameters for creating an Executor.
type ExecutorParams struct {
	Config Config

	// Logger for optional log messages.
	Logger log.Logger

	// Registerer to register executor and worker metrics with. Metrics are
	// not registered if Registerer is nil.
	Registerer prometheus.Registerer

	// Clock used to timestamp runs and tasks. Defaults to the real clock.
	Clock quartz.Clock

	// Observer, if set, is notified of every task state transition.
	Observer Observer
}

// Executor runs task graphs to completion on tag-partitioned worker pools.
//
// An Executor may run several graphs, sequentially or concurrently. Every
// run gets its own set of worker pools, torn down before the run returns.
type Executor struct {
	cfg      Config
	logger   log.Logger
	clock    quartz.Clock
	observer Observer

	metrics       *metrics
	workerMetrics *worker.Metrics
}

// NewExecutor creates a new Executor. NewExecutor returns an error wrapping
// ErrInvalidConfig if params.Config is invalid.
func NewExecutor(params ExecutorParams) (*Executor, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	if params.Logger == nil {
		params.Logger = log.NewNopLogger()
	}
	if params.Clock == nil {
		params.Clock = quartz.NewReal()
	}

	return &Executor{
		cfg:      params.Config,
		logger:   params.Logger,
		clock:    params.Clock,
		observer: params.Observer,

		metrics:       newMetrics(params.Registerer),
		workerMetrics: worker.NewMetrics(params.Registerer),
	}, nil
}

// Run builds a graph from tasks and runs it. See [Executor.RunGraph].
func (e *Executor) Run(ctx context.Context, tasks ...*Task) (*Report, error) {
	g, err := Build(tasks)
	if err != nil {
		return nil, err
	}
	return e.RunGraph(ctx, g)
}

// RunGraph runs every task of g and blocks until all of them are terminal.
//
// Task failures do not fail the run: they are recorded on the failed task
// and cascade to its dependents as cancellations. RunGraph only returns an
// error if:
//
//   - g, or a task of g, was already run (ErrGraphReused);
//   - ctx was canceled before every task finished (ErrAborted); or
//   - strict mode is enabled and a task did not succeed (ErrRunFailed).
//
// The report is returned whenever the run started, including alongside
// ErrAborted and ErrRunFailed.
func (e *Executor) RunGraph(ctx context.Context, g *Graph) (*Report, error) {
	if err := g.claim(); err != nil {
		return nil, err
	}

	r := &run{
		executor: e,
		graph:    g,
		id:       ulid.Make(),
	}
	r.logger = log.With(e.logger, "run_id", r.id)
	return r.execute(ctx)
}

// run holds the state of one RunGraph call. All fields are owned by the
// goroutine calling execute.
type run struct {
	executor *Executor
	graph    *Graph
	id       ulid.ULID
	logger   log.Logger

	pools     *worker.PoolSet
	scheduler *Scheduler

	inflight map[string]*Task // Dispatched tasks by ID.
	aborted  bool
}

func (r *run) execute(ctx context.Context) (*Report, error) {
	e := r.executor
	started := e.clock.Now()

	pools, err := worker.NewPoolSet(worker.Params{
		Config:  e.cfg.workerConfig(),
		Logger:  r.logger,
		Metrics: e.workerMetrics,
		Clock:   e.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pools: %w", err)
	}
	r.pools = pools
	defer func() {
		// Every dispatched task has completed by now, so stopping only joins
		// idle threads.
		if err := pools.Stop(context.Background()); err != nil {
			level.Error(r.logger).Log("msg", "failed to stop worker pools", "err", err)
		}
	}()

	level.Info(r.logger).Log("msg", "starting run", "tasks", r.graph.Len(), "tags", len(r.graph.Tags()))

	r.inflight = make(map[string]*Task)
	r.scheduler, err = NewScheduler(r.graph, r.observe)
	if err != nil {
		return nil, err
	}
	r.dispatch(ctx, r.scheduler.InitialReadySet())

	for r.scheduler.Remaining() > 0 {
		if !r.aborted && ctx.Err() != nil {
			r.abort(ctx)
			continue
		}
		if len(r.inflight) == 0 {
			// Every non-terminal task is waiting on a prerequisite that will
			// never finish. Build rules this out for valid graphs.
			panic(fmt.Sprintf("run %s stalled with %d tasks remaining and none in flight", r.id, r.scheduler.Remaining()))
		}

		done := ctx.Done()
		if r.aborted {
			done = nil
		}

		select {
		case <-done:
			r.abort(ctx)
		case c := <-pools.Completions():
			r.handleCompletion(ctx, c)
		}
	}

	report := newReport(r.id, r.graph, started, e.clock.Now())
	return report, r.finish(ctx, report)
}

// dispatch hands ready tasks to their worker pools. A task that cannot be
// submitted fails immediately.
func (r *run) dispatch(ctx context.Context, ready []*Task) {
	for len(ready) > 0 {
		t := ready[0]
		ready = ready[1:]

		if r.aborted || ctx.Err() != nil {
			// Left READY for abort to cancel.
			continue
		}

		if err := r.scheduler.MarkRunning(t); err != nil {
			panic(err)
		}
		t.recordDispatch(r.executor.clock.Now())

		err := r.pools.Submit(ctx, worker.Job{ID: t.ID(), Tag: t.Tag(), Run: t.execute})
		if err != nil {
			level.Warn(r.logger).Log("msg", "failed to submit task", "task_id", t.ID(), "tag", t.Tag(), "err", err)

			next, err := r.scheduler.Complete(t, nil, &ExecutionError{TaskID: t.ID(), Err: err})
			if err != nil {
				panic(err)
			}
			ready = append(ready, next...)
			continue
		}
		r.inflight[t.ID()] = t
	}
}

func (r *run) handleCompletion(ctx context.Context, c worker.Completion) {
	t, ok := r.inflight[c.ID]
	if !ok {
		level.Warn(r.logger).Log("msg", "received completion for unknown task", "task_id", c.ID, "tag", c.Tag)
		return
	}
	delete(r.inflight, c.ID)

	t.recordExecution(c.Started, c.Finished)

	var err error
	if c.Err != nil {
		err = &ExecutionError{TaskID: t.ID(), Err: c.Err}
	}

	ready, completeErr := r.scheduler.Complete(t, c.Value, err)
	if completeErr != nil {
		panic(completeErr)
	}
	r.dispatch(ctx, ready)
}

func (r *run) abort(ctx context.Context) {
	r.aborted = true

	reason := fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
	canceled := r.scheduler.Abort(reason)

	level.Warn(r.logger).Log("msg", "aborting run", "canceled", len(canceled), "in_flight", len(r.inflight), "err", context.Cause(ctx))

	for _, tag := range r.pools.Tags() {
		pool, err := r.pools.PoolFor(tag)
		if err != nil {
			continue
		}
		level.Debug(r.logger).Log("msg", "waiting for worker pool", "tag", tag, "workers", pool.Workers(), "busy", pool.Busy(), "queued", pool.Queued())
	}
}

func (r *run) finish(ctx context.Context, report *Report) error {
	var (
		m   = r.executor.metrics
		err error
	)

	outcome := "success"
	switch {
	case r.aborted:
		outcome = "aborted"
		err = fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
	case !report.OK():
		outcome = "failure"
		if r.executor.cfg.Strict {
			err = strictError(report)
		}
	}

	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runSeconds.Observe(report.Duration().Seconds())

	level.Info(r.logger).Log(
		"msg", "finished run",
		"outcome", outcome,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"canceled", report.Canceled,
		"duration", report.Duration(),
	)
	return err
}

func strictError(report *Report) error {
	if err := report.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRunFailed, err)
	}
	// Tasks can only be canceled without a failure by an abort, which is
	// reported separately.
	return fmt.Errorf("%w: %d tasks canceled", ErrRunFailed, report.Canceled)
}

// observe is the Scheduler observer of a run.
func (r *run) observe(t *Task, from, to State) {
	r.executor.metrics.tasksTotal.WithLabelValues(to.String()).Inc()

	logger := log.With(r.logger, "task_id", t.ID(), "tag", t.Tag())
	switch to {
	case StateCanceled:
		reason := t.CancelReason()
		if errors.Is(reason, ErrAborted) {
			level.Debug(logger).Log("msg", "task canceled", "reason", reason)
		} else {
			level.Warn(logger).Log("msg", "task canceled", "reason", reason)
		}
	default:
		level.Debug(logger).Log("msg", "task state changed", "from", from, "to", to)
	}

	if r.executor.observer != nil {
		r.executor.observer(t, from, to)
	}
}
