package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

// Set by -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Skip config loading so a broken config file cannot hide the version.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("deadfuncs version %s\n", version)
			cmd.Printf("Git commit: %s\n", commit)
			cmd.Printf("Go version: %s\n", runtime.Version())
		},
	}
}
