package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/betric/simmer/internal/config"
	"github.com/betric/simmer/internal/control"
	"github.com/betric/simmer/internal/runner"
	"github.com/betric/simmer/internal/simmer"
	"github.com/betric/simmer/internal/state"
	"github.com/betric/simmer/pkg/models"
)

var (
	runConfigPath   string
	runDir          string
	runDBPath       string
	runTUI          bool
	runModelPhases  string
	runExportPhases string
	runStepDelay    time.Duration
	runHaltTimeout  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the queued simulation phases",
	Long: `Run the simulation pipeline.

Phases named by --model are queued for modelling; phases named by
--export are queued for exporting. Exporting a phase with no previously
recorded modelling result forces and locks that phase's modelling queue,
since exporting depends on the phase's modelling output.

Workers execute one at a time in pipeline order (seed -> init -> sim,
modelling before exporting within a phase). While running:
  - 'simmer pause', 'simmer resume', and 'simmer stop' from another
    terminal control the run through signal files in the run directory.
  - With --tui, the p/r/s keys do the same interactively.

Every run and every worker outcome is recorded to the run-history
database; browse it with 'simmer runs'.`,
	Args: cobra.NoArgs,
	RunE: runSimulation,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "simmer.yaml", "Simulation configuration file")
	runCmd.Flags().StringVar(&runDir, "run-dir", ".simmer", "Run directory for control signals")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Run-history database path (default: XDG data dir)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the interactive run monitor")
	runCmd.Flags().StringVar(&runModelPhases, "model", "seed,init,sim", "Comma-separated phases to queue for modelling")
	runCmd.Flags().StringVar(&runExportPhases, "export", "", "Comma-separated phases to queue for exporting")
	runCmd.Flags().DurationVar(&runStepDelay, "step-delay", 25*time.Millisecond, "Pacing delay per solver step")
	runCmd.Flags().DurationVar(&runHaltTimeout, "halt-timeout", 10*time.Second, "How long shutdown waits for the active worker")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(runConfigPath)
	if err != nil {
		return err
	}

	dbPath := runDBPath
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

	signals, err := control.NewSignalManager(runDir)
	if err != nil {
		return fmt.Errorf("preparing run directory: %w", err)
	}
	defer signals.Close()
	// Stale signals from a previous run must not control this one.
	signals.ClearAll()

	events := simmer.NewEventEmitter(256)
	registry := runner.DefaultRegistry(runner.NewTimeStepper(runStepDelay))
	proactor := simmer.NewProactor(cfg, registry, events)

	if err := queuePhases(proactor, db); err != nil {
		return err
	}

	runID := fmt.Sprintf("run-%s", uuid.New().String()[:8])
	run := &state.Run{
		ID:         runID,
		Name:       cfg.RunName,
		ConfigPath: runConfigPath,
		StartedAt:  time.Now(),
		Status:     models.RunActive,
	}
	if err := db.CreateRun(run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loop := &runLoop{
		proactor:    proactor,
		events:      events,
		signals:     signals,
		db:          db,
		runID:       runID,
		haltTimeout: runHaltTimeout,
	}
	return loop.Run(ctx, runTUI)
}

// loadRunConfig loads the configuration file, falling back to defaults
// when the file does not exist.
func loadRunConfig(path string) (*config.SimConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("No config at %s, using defaults\n", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

// queuePhases applies the --model and --export selections to the phases.
// Exporting with no recorded modelling result forces and locks the
// phase's modelling queue flag.
func queuePhases(p *simmer.Proactor, db *state.DB) error {
	modelKinds, err := parsePhaseList(runModelPhases)
	if err != nil {
		return err
	}
	exportKinds, err := parsePhaseList(runExportPhases)
	if err != nil {
		return err
	}

	for _, kind := range modelKinds {
		p.Phase(kind).ToggleQueuedModelling(true)
	}
	for _, kind := range exportKinds {
		phase := p.Phase(kind)
		if !phase.Kind().SupportsExporting() {
			return fmt.Errorf("phase %s produces nothing to export", kind)
		}
		phase.ToggleQueuedExporting(true)

		if !phase.IsQueuedModelling() {
			modelled, err := db.HasSucceededModelling(kind)
			if err != nil {
				return err
			}
			if !modelled {
				fmt.Printf("Exporting %s requires modelling first; queueing it\n", kind)
				phase.ToggleQueuedModelling(true)
				phase.LockModelling(true)
			}
		}
	}

	if !p.IsQueued() {
		return fmt.Errorf("nothing to run: no phase queued")
	}
	return nil
}

// parsePhaseList parses a comma-separated phase list. "sim" is accepted
// as an alias for the main phase to match the config file sections.
func parsePhaseList(list string) ([]models.PhaseKind, error) {
	var kinds []models.PhaseKind
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind := models.PhaseKind(name)
		if name == "sim" {
			kind = models.PhaseMain
		}
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown phase %q (expected seed, init, or sim)", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
