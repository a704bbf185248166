package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "simmer",
	Short: "Simulation run controller",
	Long: `Simmer queues, sequences, pauses, resumes, and stops the phases of a
multi-stage simulation pipeline (seed -> init -> sim).

Each phase can be queued for modelling and, where supported, exporting.
A run executes the queued workers one at a time in pipeline order, can be
paused and resumed at cooperative checkpoints, and records every outcome
to the run-history database.

A detached run is controlled from another terminal with the pause, resume,
and stop commands, which drop signal files into the run directory.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}
