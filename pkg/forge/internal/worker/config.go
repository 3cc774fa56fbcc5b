package worker

import (
	"errors"
	"fmt"
)

// ErrInvalidWorkers is returned when a pool would be created with fewer than
// one worker.
var ErrInvalidWorkers = errors.New("worker count must be at least 1")

// Config sizes the pools of a PoolSet.
type Config struct {
	// DefaultWorkers is the number of workers for tags without an entry in
	// TagWorkers.
	DefaultWorkers int

	// TagWorkers overrides the worker count for individual tags.
	TagWorkers map[string]int
}

// Validate returns an error if any configured worker count is below one.
func (cfg Config) Validate() error {
	if cfg.DefaultWorkers < 1 {
		return fmt.Errorf("%w: default workers is %d", ErrInvalidWorkers, cfg.DefaultWorkers)
	}
	for tag, n := range cfg.TagWorkers {
		if n < 1 {
			return fmt.Errorf("%w: tag %q has %d workers", ErrInvalidWorkers, tag, n)
		}
	}
	return nil
}

// WorkersFor returns the number of workers a pool for tag runs.
func (cfg Config) WorkersFor(tag string) int {
	if n, ok := cfg.TagWorkers[tag]; ok {
		return n
	}
	return cfg.DefaultWorkers
}
