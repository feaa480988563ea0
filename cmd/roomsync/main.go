package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roomsync",
		Short: "Room-based multiplayer state synchronization",
		Long: `Roomsync keeps a group of participants' shared state in sync:
rooms with bounded membership, named events with three delivery
modes, networked entities, and a periodic state stream with
latency estimation.

The serve command runs the loopback coordination server; demo
runs two participants against it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		demoCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
