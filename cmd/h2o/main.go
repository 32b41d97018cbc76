package main

import (
	"os"

	"github.com/dyluth/h2o/cmd/h2o/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package; only the exit code is left.
	os.Exit(commands.Execute())
}
