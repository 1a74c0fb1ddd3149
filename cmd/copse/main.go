package main

import (
	"os"

	"github.com/dyluth/copse/cmd/copse/commands"
	apperrors "github.com/dyluth/copse/internal/errors"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package; only the exit code is left
	if err := commands.Execute(); err != nil {
		os.Exit(apperrors.ExitCode(err))
	}
}
