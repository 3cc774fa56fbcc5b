package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/spf13/afero"

	"github.com/djordjijek/taskforge/pkg/forge"
	util_log "github.com/djordjijek/taskforge/pkg/util/log"
)

// runCommand runs the pipeline over every file in the input directory.
type runCommand struct {
	opts *options
}

func (cmd *runCommand) run(_ *kingpin.ParseContext) error {
	logger, err := cmd.opts.logger()
	if err != nil {
		exitWithErr(err)
	}

	fs := afero.NewOsFs()
	conf, err := cmd.opts.loadConfig(fs)
	util_log.CheckFatal("loading config", err, logger)

	p, err := buildPipeline(fs, conf, logger)
	util_log.CheckFatal("building pipeline", err, logger)

	executor, err := forge.NewExecutor(forge.ExecutorParams{
		Config: conf.Forge,
		Logger: logger,
	})
	util_log.CheckFatal("creating executor", err, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := executor.Run(ctx, p.Tasks()...)
	if report != nil {
		printReport(os.Stdout, report, p)
	}
	if err != nil {
		exitWithErr(fmt.Errorf("run failed: %w", err))
	}
	return nil
}

func addRunCommand(app *kingpin.Application) {
	cmd := &runCommand{}
	clause := app.Command("run", "Read, process, and compress every file in the input directory.").Default().Action(cmd.run)
	cmd.opts = addOptions(clause)
}

// graphCommand prints the task graph without running it.
type graphCommand struct {
	opts *options
}

func (cmd *graphCommand) run(_ *kingpin.ParseContext) error {
	logger, err := cmd.opts.logger()
	if err != nil {
		exitWithErr(err)
	}

	fs := afero.NewOsFs()
	conf, err := cmd.opts.loadConfig(fs)
	util_log.CheckFatal("loading config", err, logger)

	p, err := buildPipeline(fs, conf, logger)
	util_log.CheckFatal("building pipeline", err, logger)

	g, err := forge.Build(p.Tasks())
	if err != nil {
		exitWithErr(fmt.Errorf("invalid task graph: %w", err))
	}
	printGraph(os.Stdout, g, conf.Forge)
	return nil
}

func addGraphCommand(app *kingpin.Application) {
	cmd := &graphCommand{}
	clause := app.Command("graph", "Print the task graph in dependency order.").Action(cmd.run)
	cmd.opts = addOptions(clause)
}

