package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"golang.org/x/sync/errgroup"
)

// ErrPoolStopped is returned when submitting to a pool that is not running.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool is a fixed number of threads dedicated to a single tag. Pools are
// services: threads only pick up jobs while the pool is running.
type Pool struct {
	*services.BasicService

	tag     string
	logger  log.Logger
	clock   quartz.Clock
	metrics *Metrics

	queue   *jobQueue
	threads []*thread
}

func newPool(tag string, workers int, logger log.Logger, clock quartz.Clock, metrics *Metrics, completions chan<- Completion) *Pool {
	p := &Pool{
		tag:     tag,
		logger:  log.With(logger, "tag", tag),
		clock:   clock,
		metrics: metrics,
		queue:   newJobQueue(),
	}

	for i := 0; i < workers; i++ {
		p.threads = append(p.threads, &thread{
			Tag:    tag,
			Logger: log.With(p.logger, "thread", i),
			Clock:  clock,

			Metrics:     metrics,
			Queue:       p.queue,
			Completions: completions,
		})
	}

	p.BasicService = services.NewBasicService(nil, p.running, p.stopping)
	return p
}

func (p *Pool) running(ctx context.Context) error {
	level.Debug(p.logger).Log("msg", "starting worker pool", "workers", len(p.threads))

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range p.threads {
		g.Go(func() error { return t.Run(ctx) })
	}
	return g.Wait()
}

func (p *Pool) stopping(_ error) error {
	abandoned := p.queue.Close()
	for _, job := range abandoned {
		level.Warn(p.logger).Log("msg", "abandoning queued job", "job_id", job.Job.ID, "queued_for", p.clock.Since(job.Enqueued))
	}

	level.Debug(p.logger).Log("msg", "worker pool stopped")
	return nil
}

// Tag returns the tag the pool serves.
func (p *Pool) Tag() string { return p.tag }

// Workers returns the number of threads in the pool.
func (p *Pool) Workers() int { return len(p.threads) }

// Busy returns the number of threads currently running a job.
func (p *Pool) Busy() int {
	var busy int
	for _, t := range p.threads {
		if t.State() == threadStateBusy {
			busy++
		}
	}
	return busy
}

// Queued returns the number of jobs waiting for a free thread.
func (p *Pool) Queued() int { return p.queue.Len() }

// Submit enqueues job for execution by a free thread. Submit never blocks on
// thread availability. The outcome of the job is sent on the pool's
// completion stream, unless the pool is stopped before a thread picks it up.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job.Tag != p.tag {
		return fmt.Errorf("job %s has tag %q, pool serves %q", job.ID, job.Tag, p.tag)
	} else if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.ID)
	}
	if state := p.State(); state != services.Running {
		return fmt.Errorf("%w: pool %q is %s", ErrPoolStopped, p.tag, state)
	}

	err := p.queue.Push(&queuedJob{
		Context:  ctx,
		Job:      job,
		Enqueued: p.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: pool %q", ErrPoolStopped, p.tag)
	}
	return nil
}
