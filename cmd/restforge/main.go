package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "restforge",
		Short: "RestForge declarative REST resource server",
		Long: `RestForge turns declarative entity descriptors into a full REST API:
generated per-operation contracts, relation resolution, lifecycle hooks,
and eager-load scoping over a SQL store.`,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
