package main

import (
	"os"

	"github.com/walksalot/docpipe/cmd"
)

func main() {
	// Most exit-code decisions (config vs. unrecoverable vs. cancelled) are
	// made inside the subcommands via os.Exit, since they know which stage
	// failed. A bare cobra error (bad flags, unknown subcommand) falls back
	// to the configuration-error code.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
