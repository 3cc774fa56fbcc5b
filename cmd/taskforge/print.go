package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/djordjijek/taskforge/pkg/forge"
	"github.com/djordjijek/taskforge/pkg/pipeline"
)

var stateColors = map[forge.State]*color.Color{
	forge.StateSucceeded: color.New(color.FgGreen),
	forge.StateFailed:    color.New(color.FgRed, color.Bold),
	forge.StateCanceled:  color.New(color.FgYellow),
}

func colorState(s forge.State) string {
	if c, ok := stateColors[s]; ok {
		return c.Sprint(s)
	}
	return s.String()
}

func printReport(w io.Writer, report *forge.Report, p *pipeline.Pipeline) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Run %s:\n", report.RunID)
	fmt.Fprintf(w,
		"\tduration: %v, tasks: %s, succeeded: %s, failed: %s, canceled: %s\n",
		report.Duration(),
		humanize.Comma(int64(len(report.Tasks))),
		humanize.Comma(int64(report.Succeeded)),
		humanize.Comma(int64(report.Failed)),
		humanize.Comma(int64(report.Canceled)),
	)

	var (
		totalIn  uint64
		totalOut uint64
	)
	for _, c := range p.Chains {
		bold.Fprintf(w, "%s:\n", c.Name)

		for _, t := range []*forge.Task{c.Read, c.Process, c.Compress} {
			fmt.Fprintf(w, "\t%-10s %s", strings.SplitN(t.ID(), "_", 2)[0], colorState(t.State()))

			switch t.State() {
			case forge.StateFailed:
				fmt.Fprintf(w, " (%v)", t.Err())
			case forge.StateCanceled:
				if cause := t.Cause(); cause != nil {
					fmt.Fprintf(w, " (caused by %s)", cause.ID())
				} else {
					fmt.Fprintf(w, " (%v)", t.CancelReason())
				}
			case forge.StateSucceeded:
				timing := t.Timing()
				fmt.Fprintf(w, " in %v", timing.Finished.Sub(timing.Started))
			}
			fmt.Fprintln(w)
		}

		if out, ok := c.Compress.Result().(*pipeline.Output); ok {
			totalIn += uint64(out.UncompressedSize)
			totalOut += uint64(out.CompressedSize)
			fmt.Fprintf(w,
				"\toutput: %s, %v -> %v (%s), checksum: %016x\n",
				out.Path,
				humanize.Bytes(uint64(out.UncompressedSize)),
				humanize.Bytes(uint64(out.CompressedSize)),
				out.Codec,
				out.Checksum,
			)
		}
	}

	if totalIn > 0 {
		bold.Fprintf(w, "Total: %v -> %v\n", humanize.Bytes(totalIn), humanize.Bytes(totalOut))
	}
}

func printGraph(w io.Writer, g *forge.Graph, conf forge.Config) {
	bold := color.New(color.Bold)

	bold.Fprintln(w, "Worker pools:")
	for _, tag := range g.Tags() {
		fmt.Fprintf(w, "\t%s: %d workers\n", tag, conf.WorkersFor(tag))
	}

	bold.Fprintln(w, "Initial ready set:")
	for _, t := range g.InitialReadySet() {
		fmt.Fprintf(w, "\t%s\n", t.ID())
	}

	bold.Fprintln(w, "Final tasks:")
	for _, t := range g.Leaves() {
		fmt.Fprintf(w, "\t%s\n", t.ID())
	}

	bold.Fprintln(w, "Dependency order:")
	for i, t := range g.TopologicalOrder() {
		deps := t.Dependencies()
		if len(deps) == 0 {
			fmt.Fprintf(w, "\t%3d. %s [%s]\n", i+1, t.ID(), t.Tag())
			continue
		}
		fmt.Fprintf(w, "\t%3d. %s [%s] after %s\n", i+1, t.ID(), t.Tag(), strings.Join(deps, ", "))
	}
}
