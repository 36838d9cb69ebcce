package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Verdict - decision table rule engine",
	Long: `Verdict evaluates business rules written as decision tables.

A table declares typed request and response fields and an ordered list of
condition rows. Solving a request returns the outcome of the first row
that matches, merged over the response defaults.

Verdict provides:
  - Single and bulk solving from the command line
  - Rule test fixtures with text, JSON and JUnit reports
  - Dynamic Values shared between tables
  - Versioned publishing to SQLite or PostgreSQL
  - An HTTP API with decision logs, metrics and tracing`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "verdict.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
