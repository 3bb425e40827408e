package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "falcon",
	Short: "Falcon - AI-generated wikis for GitHub repositories",
	Long: `Falcon turns GitHub repositories into browsable wikis.

A durable job queue drives a five-phase pipeline (clone, analyze,
generate, index, complete) in which an external coding agent writes
the wiki pages. A second, tool-calling agent answers questions about
repositories ingested into an indexed file store.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Falcon version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
