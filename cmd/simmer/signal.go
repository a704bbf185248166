package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/betric/simmer/internal/control"
)

var signalRunDir string

func sendSignal(sig control.Signal) error {
	sm, err := control.NewSignalManager(signalRunDir)
	if err != nil {
		return fmt.Errorf("opening run directory: %w", err)
	}
	defer sm.Close()

	if err := sm.Send(sig); err != nil {
		return fmt.Errorf("sending %s signal: %w", sig, err)
	}
	fmt.Printf("Sent %s signal to %s\n", sig, signalRunDir)
	return nil
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the run in the given run directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSignal(control.SignalPause)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSignal(control.SignalResume)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the run, abandoning queued workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSignal(control.SignalStop)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{pauseCmd, resumeCmd, stopCmd} {
		cmd.Flags().StringVar(&signalRunDir, "run-dir", ".simmer", "Run directory of the target run")
	}
}
