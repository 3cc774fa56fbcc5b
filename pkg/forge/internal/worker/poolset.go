// Package worker implements tag-partitioned worker pools.
//
// A PoolSet holds one Pool per tag. Pools are created the first time their
// tag is referenced and never share threads, so a saturated tag cannot delay
// jobs submitted to another tag.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/grafana/dskit/services"
)

// Params holds the dependencies of a PoolSet.
type Params struct {
	Config  Config
	Logger  log.Logger   // Logger for optional log messages.
	Metrics *Metrics     // Metrics to update. Defaults to unregistered metrics.
	Clock   quartz.Clock // Clock used to timestamp jobs. Defaults to the real clock.
}

// PoolSet routes jobs to per-tag pools and merges their completions into a
// single stream.
type PoolSet struct {
	cfg     Config
	logger  log.Logger
	metrics *Metrics
	clock   quartz.Clock

	completions chan Completion

	mut     sync.Mutex
	pools   map[string]*Pool
	tags    []string // Tags in order of pool creation.
	stopped bool
}

// NewPoolSet creates a PoolSet. No pools are started until a tag is first
// referenced.
func NewPoolSet(params Params) (*PoolSet, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	if params.Logger == nil {
		params.Logger = log.NewNopLogger()
	}
	if params.Metrics == nil {
		params.Metrics = NewMetrics(nil)
	}
	if params.Clock == nil {
		params.Clock = quartz.NewReal()
	}

	return &PoolSet{
		cfg:     params.Config,
		logger:  params.Logger,
		metrics: params.Metrics,
		clock:   params.Clock,

		completions: make(chan Completion),
		pools:       make(map[string]*Pool),
	}, nil
}

// Completions returns the stream of finished jobs from every pool. Threads
// block until their completion is received, so callers that submit jobs
// must keep reading from the stream until every submitted job is accounted
// for.
func (ps *PoolSet) Completions() <-chan Completion { return ps.completions }

// PoolFor returns the pool bound to tag, creating and starting it on first
// reference.
func (ps *PoolSet) PoolFor(tag string) (*Pool, error) {
	if tag == "" {
		return nil, fmt.Errorf("empty tag")
	}

	ps.mut.Lock()
	defer ps.mut.Unlock()

	if ps.stopped {
		return nil, ErrPoolStopped
	}
	if pool, ok := ps.pools[tag]; ok {
		return pool, nil
	}

	workers := ps.cfg.WorkersFor(tag)
	if workers < 1 {
		return nil, fmt.Errorf("%w: tag %q has %d workers", ErrInvalidWorkers, tag, workers)
	}

	pool := newPool(tag, workers, ps.logger, ps.clock, ps.metrics, ps.completions)
	if err := services.StartAndAwaitRunning(context.Background(), pool); err != nil {
		return nil, fmt.Errorf("starting pool for tag %q: %w", tag, err)
	}

	ps.pools[tag] = pool
	ps.tags = append(ps.tags, tag)
	ps.metrics.pools.Inc()
	level.Debug(ps.logger).Log("msg", "created worker pool", "tag", tag, "workers", workers)
	return pool, nil
}

// Submit enqueues job on the pool matching job.Tag.
func (ps *PoolSet) Submit(ctx context.Context, job Job) error {
	pool, err := ps.PoolFor(job.Tag)
	if err != nil {
		return err
	}
	return pool.Submit(ctx, job)
}

// Tags returns the tags of all pools created so far, in creation order.
func (ps *PoolSet) Tags() []string {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	return append([]string(nil), ps.tags...)
}

// Stop stops every pool and waits for their threads to exit. Threads finish
// the job they are running; queued jobs are abandoned. Stop is idempotent.
func (ps *PoolSet) Stop(ctx context.Context) error {
	ps.mut.Lock()
	if ps.stopped {
		ps.mut.Unlock()
		return nil
	}
	ps.stopped = true

	pools := make([]*Pool, 0, len(ps.tags))
	for _, tag := range ps.tags {
		pools = append(pools, ps.pools[tag])
	}
	ps.mut.Unlock()

	for _, pool := range pools {
		pool.StopAsync()
	}

	var errs multierror.MultiError
	for _, pool := range pools {
		if err := pool.AwaitTerminated(ctx); err != nil {
			level.Error(ps.logger).Log("msg", "failed to stop worker pool", "tag", pool.Tag(), "err", err)
			errs.Add(fmt.Errorf("stopping pool for tag %q: %w", pool.Tag(), err))
			continue
		}
		ps.metrics.pools.Dec()
	}
	return errs.Err()
}
