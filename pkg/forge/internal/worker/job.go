package worker

import (
	"context"
	"time"
)

// Job is a unit of work submitted to a pool.
type Job struct {
	ID  string // Identifies the job in logs and completions.
	Tag string // Selects the pool the job runs on.

	// Run performs the work. The context passed to Run is the one given to
	// Submit.
	Run func(ctx context.Context) (any, error)
}

// Completion reports the outcome of a Job.
type Completion struct {
	ID  string
	Tag string

	Value any   // Value returned by Job.Run. Only meaningful if Err is nil.
	Err   error // Error returned by Job.Run, or a recovered panic.

	Enqueued time.Time // When the job was submitted.
	Started  time.Time // When a thread picked up the job.
	Finished time.Time // When Job.Run returned.
}

// queuedJob is a job waiting in a pool's queue.
type queuedJob struct {
	Context  context.Context
	Job      Job
	Enqueued time.Time
}
