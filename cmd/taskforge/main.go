// Command taskforge runs file pipelines on tag-partitioned worker pools.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/version"
)

func main() {
	app := kingpin.New("taskforge", "Read, process, and compress files as a graph of tasks running on per-tag worker pools.")
	app.Version(version.Print("taskforge"))
	app.HelpFlag.Short('h')

	addRunCommand(app)
	addGraphCommand(app)
	addVersionCommand(app)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

func addVersionCommand(app *kingpin.Application) {
	app.Command("version", "Print version information.").Action(func(*kingpin.ParseContext) error {
		fmt.Println(version.Print("taskforge"))
		return nil
	})
}

func exitWithErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
