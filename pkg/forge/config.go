package forge

import (
	"flag"
	"fmt"

	"github.com/djordjijek/taskforge/pkg/forge/internal/worker"
	"github.com/djordjijek/taskforge/pkg/util/flagext"
)

// Config configures an Executor.
type Config struct {
	WorkersPerTag int               `yaml:"workers_per_tag"`
	TagWorkers    flagext.TagLimits `yaml:"tag_workers"`
	Strict        bool              `yaml:"strict"`
}

// RegisterFlags registers flags with the "forge." prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("forge.", f)
}

// RegisterFlagsWithPrefix registers flags, prepending prefix to each name.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.WorkersPerTag, prefix+"workers-per-tag", 1, "Number of concurrent workers for every tag without an explicit worker count.")
	f.Var(&cfg.TagWorkers, prefix+"tag-workers", "Per-tag worker counts as a comma-separated list of tag=count pairs, for example io=4,cpu=2. Overrides -"+prefix+"workers-per-tag for the listed tags.")
	f.BoolVar(&cfg.Strict, prefix+"strict", false, "Return an error from a run if any task fails or is canceled.")
}

// Validate returns an error if cfg could deadlock a run.
func (cfg *Config) Validate() error {
	if cfg.WorkersPerTag < 1 {
		return fmt.Errorf("%w: workers per tag must be at least 1, got %d", ErrInvalidConfig, cfg.WorkersPerTag)
	}
	for tag, n := range cfg.TagWorkers {
		if tag == "" {
			return fmt.Errorf("%w: tag workers contain an empty tag", ErrInvalidConfig)
		}
		if n < 1 {
			return fmt.Errorf("%w: tag %q must have at least 1 worker, got %d", ErrInvalidConfig, tag, n)
		}
	}
	return nil
}

// WorkersFor returns the number of workers for tag.
func (cfg *Config) WorkersFor(tag string) int {
	return cfg.workerConfig().WorkersFor(tag)
}

func (cfg *Config) workerConfig() worker.Config {
	return worker.Config{
		DefaultWorkers: cfg.WorkersPerTag,
		TagWorkers:     cfg.TagWorkers,
	}
}
