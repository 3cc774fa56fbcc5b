package forge

import (
	"time"

	"github.com/grafana/dskit/multierror"
	"github.com/oklog/ulid/v2"
)

// Report summarizes a finished run.
type Report struct {
	RunID    ulid.ULID
	Started  time.Time
	Finished time.Time

	// Tasks holds every task of the run in the order given to Build.
	Tasks []*Task

	Succeeded int
	Failed    int
	Canceled  int
}

func newReport(runID ulid.ULID, g *Graph, started, finished time.Time) *Report {
	r := &Report{
		RunID:    runID,
		Started:  started,
		Finished: finished,
		Tasks:    g.Tasks(),
	}

	for _, t := range r.Tasks {
		switch t.State() {
		case StateSucceeded:
			r.Succeeded++
		case StateFailed:
			r.Failed++
		case StateCanceled:
			r.Canceled++
		}
	}
	return r
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// OK returns true if every task succeeded.
func (r *Report) OK() bool { return r.Failed == 0 && r.Canceled == 0 }

// FailedTasks returns the tasks that ended FAILED.
func (r *Report) FailedTasks() []*Task { return r.inState(StateFailed) }

// CanceledTasks returns the tasks that ended CANCELED.
func (r *Report) CanceledTasks() []*Task { return r.inState(StateCanceled) }

func (r *Report) inState(state State) []*Task {
	var tasks []*Task
	for _, t := range r.Tasks {
		if t.State() == state {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// Err returns the execution errors of all failed tasks combined into one
// error, or nil if no task failed.
func (r *Report) Err() error {
	var errs multierror.MultiError
	for _, t := range r.FailedTasks() {
		errs.Add(t.Err())
	}
	return errs.Err()
}
