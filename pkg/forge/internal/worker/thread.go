package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type threadState int

const (
	// threadStateIdle reports that a thread is not running.
	threadStateIdle threadState = iota

	// threadStateReady reports that a thread is ready to run a task.
	threadStateReady

	// threadStateBusy reports that a thread is currently running a task.
	threadStateBusy
)

func (s threadState) String() string {
	switch s {
	case threadStateIdle:
		return "idle"
	case threadStateReady:
		return "ready"
	case threadStateBusy:
		return "busy"
	default:
		return fmt.Sprintf("threadState(%d)", s)
	}
}

// thread represents a worker thread that executes one task at a time.
type thread struct {
	Tag    string
	Logger log.Logger
	Clock  quartz.Clock

	Metrics     *Metrics
	Queue       *jobQueue
	Completions chan<- Completion

	stateMut sync.RWMutex
	state    threadState
}

// State returns the current state of the thread.
func (t *thread) State() threadState {
	t.stateMut.RLock()
	defer t.stateMut.RUnlock()
	return t.state
}

// Run starts the thread. Run will receive and run jobs in a loop until the
// context is canceled. A job that has already started is always run to
// completion.
func (t *thread) Run(ctx context.Context) error {
	defer t.setState(threadStateIdle)

	for {
		if ctx.Err() != nil {
			return nil
		}

		t.setState(threadStateReady)
		job, err := t.Queue.Recv(ctx)
		if err != nil {
			return nil
		}

		t.setState(threadStateBusy)
		t.Metrics.busyThreads.WithLabelValues(t.Tag).Inc()
		completion := t.runJob(job)
		t.Metrics.busyThreads.WithLabelValues(t.Tag).Dec()

		if t.Completions == nil {
			continue
		}

		select {
		case t.Completions <- completion:
		case <-ctx.Done():
			level.Warn(t.Logger).Log("msg", "pool stopped before completion was delivered", "task_id", completion.ID)
		}
	}
}

func (t *thread) setState(state threadState) {
	t.stateMut.Lock()
	defer t.stateMut.Unlock()
	t.state = state
}

func (t *thread) runJob(job *queuedJob) Completion {
	logger := log.With(t.Logger, "task_id", job.Job.ID)

	startTime := t.Clock.Now()
	t.Metrics.taskQueueSeconds.WithLabelValues(t.Tag).Observe(startTime.Sub(job.Enqueued).Seconds())
	level.Debug(logger).Log("msg", "starting task")

	value, err := invoke(job.Context, job.Job.Run)

	finishTime := t.Clock.Now()
	duration := finishTime.Sub(startTime)
	if err != nil {
		level.Warn(logger).Log("msg", "task failed", "duration", duration, "err", err)
		t.Metrics.tasksTotal.WithLabelValues(t.Tag, "failed").Inc()
	} else {
		level.Info(logger).Log("msg", "task completed", "duration", duration)
		t.Metrics.tasksTotal.WithLabelValues(t.Tag, "succeeded").Inc()
	}
	t.Metrics.taskExecSeconds.WithLabelValues(t.Tag).Observe(duration.Seconds())

	completion := Completion{
		ID:  job.Job.ID,
		Tag: job.Job.Tag,

		Value: value,
		Err:   err,

		Enqueued: job.Enqueued,
		Started:  startTime,
		Finished: finishTime,
	}
	return completion
}

// invoke calls run, converting a panic into an error.
func invoke(ctx context.Context, run func(context.Context) (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("task panicked: %v", r)
		}
	}()
	return run(ctx)
}
