package worker

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

// jobQueue is an unbounded FIFO of jobs shared by the threads of one pool.
// Push never blocks.
type jobQueue struct {
	mut    sync.Mutex
	jobs   []*queuedJob
	closed bool

	// notify has a capacity of one. A receiver that takes a job while more
	// remain queued re-signals so another idle thread wakes up.
	notify chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{notify: make(chan struct{}, 1)}
}

func (q *jobQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Push appends job to the queue.
func (q *jobQueue) Push(job *queuedJob) error {
	q.mut.Lock()
	if q.closed {
		q.mut.Unlock()
		return errQueueClosed
	}
	q.jobs = append(q.jobs, job)
	q.mut.Unlock()

	q.signal()
	return nil
}

// Recv blocks until a job is available, the queue is closed, or ctx is
// canceled.
func (q *jobQueue) Recv(ctx context.Context) (*queuedJob, error) {
	for {
		q.mut.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = nil
			q.jobs = q.jobs[1:]
			remaining := len(q.jobs)
			q.mut.Unlock()

			if remaining > 0 {
				q.signal()
			}
			return job, nil
		} else if q.closed {
			q.mut.Unlock()
			return nil, errQueueClosed
		}
		q.mut.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mut.Lock()
	defer q.mut.Unlock()
	return len(q.jobs)
}

// Close closes the queue and returns any jobs that were never received.
func (q *jobQueue) Close() []*queuedJob {
	q.mut.Lock()
	defer q.mut.Unlock()

	q.closed = true
	abandoned := q.jobs
	q.jobs = nil
	return abandoned
}
