// Command qsbot drains a queue of QuickStatements batches against a
// Wikibase-style wiki. See cli.RootCmd for the available subcommands
// (bot, parse, validate, run).
package main

import (
	"os"

	"github.com/wmde/qsbot/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
