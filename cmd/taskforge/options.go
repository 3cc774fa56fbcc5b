package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	dslog "github.com/grafana/dskit/log"
	"github.com/spf13/afero"

	"github.com/djordjijek/taskforge/pkg/cfg"
	"github.com/djordjijek/taskforge/pkg/compression"
	"github.com/djordjijek/taskforge/pkg/forge"
	"github.com/djordjijek/taskforge/pkg/pipeline"
	"github.com/djordjijek/taskforge/pkg/util/flagext"
	util_log "github.com/djordjijek/taskforge/pkg/util/log"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Forge    forge.Config   `yaml:"forge"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig configures the file pipeline.
type PipelineConfig struct {
	InputDir  string            `yaml:"input_dir"`
	OutputDir string            `yaml:"output_dir"`
	Codec     compression.Codec `yaml:"codec"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Forge.RegisterFlags(f)
	c.Pipeline.RegisterFlags(f)
}

func (c *PipelineConfig) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.InputDir, "pipeline.input-dir", ".", "Directory holding the files to process.")
	f.StringVar(&c.OutputDir, "pipeline.output-dir", "out", "Directory to write compressed files to.")
	c.Codec = compression.GZIP
	f.Var(&c.Codec, "pipeline.codec", "Codec to compress files with. Supported: "+compression.SupportedCodecs()+".")
}

// options holds the flags shared by every command that builds a pipeline.
type options struct {
	configFiles flagext.ConfigFiles
	logLevel    string
	logFormat   string

	// Overrides only apply when set by the user, so that values from
	// configuration files are kept otherwise.
	inputDir, outputDir, codec string
	workersPerTag              int
	tagWorkers                 flagext.TagLimits
	strict                     bool

	inputDirSet, outputDirSet, codecSet bool
	workersPerTagSet, tagWorkersSet     bool
	strictSet                           bool
}

func addOptions(cmd *kingpin.CmdClause) *options {
	o := &options{}

	cmd.Flag("config.file", "YAML configuration file. May be repeated; later files override earlier ones.").SetValue(&o.configFiles)
	cmd.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error].").Default("info").EnumVar(&o.logLevel, "debug", "info", "warn", "error")
	cmd.Flag("log.format", "Output log messages in the given format. Valid formats: [logfmt, json].").Default(util_log.FormatLogfmt).EnumVar(&o.logFormat, util_log.FormatLogfmt, util_log.FormatJSON)

	cmd.Flag("input-dir", "Directory holding the files to process.").IsSetByUser(&o.inputDirSet).StringVar(&o.inputDir)
	cmd.Flag("output-dir", "Directory to write compressed files to.").IsSetByUser(&o.outputDirSet).StringVar(&o.outputDir)
	cmd.Flag("codec", "Codec to compress files with. Supported: "+compression.SupportedCodecs()+".").IsSetByUser(&o.codecSet).StringVar(&o.codec)
	cmd.Flag("workers-per-tag", "Number of concurrent workers for every tag without an explicit worker count.").IsSetByUser(&o.workersPerTagSet).IntVar(&o.workersPerTag)
	cmd.Flag("tag-workers", "Per-tag worker counts, for example io=4,cpu=2. May be repeated.").IsSetByUser(&o.tagWorkersSet).SetValue(&o.tagWorkers)
	cmd.Flag("strict", "Exit with an error if any task does not succeed.").IsSetByUser(&o.strictSet).BoolVar(&o.strict)

	return o
}

// overrides returns the flags set on the command line in terms of the
// configuration's flag names.
func (o *options) overrides() []cfg.FlagValue {
	var values []cfg.FlagValue
	add := func(set bool, name, value string) {
		if set {
			values = append(values, cfg.FlagValue{Name: name, Value: value})
		}
	}

	add(o.inputDirSet, "pipeline.input-dir", o.inputDir)
	add(o.outputDirSet, "pipeline.output-dir", o.outputDir)
	add(o.codecSet, "pipeline.codec", o.codec)
	add(o.workersPerTagSet, "forge.workers-per-tag", strconv.Itoa(o.workersPerTag))
	add(o.tagWorkersSet, "forge.tag-workers", o.tagWorkers.String())
	add(o.strictSet, "forge.strict", strconv.FormatBool(o.strict))
	return values
}

// loadConfig layers flag defaults, configuration files, and command-line
// overrides.
func (o *options) loadConfig(fs afero.Fs) (Config, error) {
	var c Config
	err := cfg.Unmarshal(&c,
		cfg.Defaults(),
		cfg.YAML(fs, o.configFiles...),
		cfg.Flags(o.overrides()...),
	)
	if err != nil {
		return Config{}, err
	}
	if err := c.Forge.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (o *options) logger() (log.Logger, error) {
	var lvl dslog.Level
	if err := lvl.Set(o.logLevel); err != nil {
		return nil, err
	}
	return util_log.NewLogger(lvl, o.logFormat, os.Stderr)
}

func buildPipeline(fs afero.Fs, c Config, logger log.Logger) (*pipeline.Pipeline, error) {
	inputs, err := pipeline.Discover(fs, c.Pipeline.InputDir)
	if err != nil {
		return nil, err
	}

	return pipeline.Build(pipeline.Params{
		Fs:        fs,
		Inputs:    inputs,
		OutputDir: c.Pipeline.OutputDir,
		Codec:     c.Pipeline.Codec,
		Logger:    logger,
	})
}
