package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/betric/simmer/internal/state"
	"github.com/betric/simmer/pkg/models"
)

var (
	runsLimit  int
	runsDBPath string
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Browse run history",
	Long: `List recent runs, newest first.

With a run ID, show that run's per-phase results instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := runsDBPath
		if dbPath == "" {
			dbPath = state.DefaultDBPath()
		}
		db, err := state.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening run history: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrating run history: %w", err)
		}

		if len(args) == 1 {
			return showRun(db, args[0])
		}
		return listRuns(db)
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list")
	runsCmd.Flags().StringVar(&runsDBPath, "db", "", "Run-history database path (default: XDG data dir)")
}

func listRuns(db *state.DB) error {
	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %-20s %s  %s\n",
			run.ID, run.Name, run.StartedAt.Local().Format("2006-01-02 15:04"), statusString(run.Status))
	}
	return nil
}

func showRun(db *state.DB, id string) error {
	run, err := db.GetRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run with ID %s", id)
	}

	fmt.Printf("%s  %s  started %s  %s\n",
		run.ID, run.Name, run.StartedAt.Local().Format("2006-01-02 15:04:05"), statusString(run.Status))
	if run.Error != "" {
		fmt.Printf("  error: %s\n", color.RedString(run.Error))
	}

	results, err := db.ListPhaseResults(id)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("  no phase results recorded")
		return nil
	}

	for _, pr := range results {
		duration := ""
		if pr.FinishedAt != nil {
			duration = pr.FinishedAt.Sub(pr.StartedAt).Round(time.Millisecond).String()
		}
		line := fmt.Sprintf("  %-6s %-10s %-9s steps=%-6d %s", pr.Phase, pr.Work, pr.Outcome, pr.Steps, duration)
		if pr.Error != "" {
			line += "  " + color.RedString(pr.Error)
		}
		fmt.Println(line)
	}
	return nil
}

func statusString(status models.RunStatus) string {
	switch status {
	case models.RunCompleted:
		return color.GreenString(string(status))
	case models.RunFailed:
		return color.RedString(string(status))
	case models.RunStopped:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
