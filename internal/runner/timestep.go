package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/betric/simmer/internal/config"
	"github.com/betric/simmer/pkg/models"
)

// maxStableStep is the largest time step the built-in solver accepts, in
// seconds. Larger steps are reported as an instability rather than a
// generic failure so the classification path is exercised end to end.
const maxStableStep = 2.0

// TimeStepper is the built-in work routine provider. It paces through the
// configured step count for a phase, honoring the check-point and progress
// contracts, and writes placeholder export files. It performs no actual
// numerics.
type TimeStepper struct {
	// StepDelay is slept per solver step, pacing demo runs. Zero means
	// run at full speed.
	StepDelay time.Duration
}

// NewTimeStepper creates a TimeStepper with the given per-step delay.
func NewTimeStepper(stepDelay time.Duration) *TimeStepper {
	return &TimeStepper{StepDelay: stepDelay}
}

// DefaultRegistry returns a Registry with the TimeStepper bound to every
// (phase, work) pair a phase supports.
func DefaultRegistry(ts *TimeStepper) *Registry {
	r := NewRegistry()
	for _, phase := range models.AllPhaseKinds() {
		r.Register(phase, models.WorkModelling, ts.Modelling(phase))
		if phase.SupportsExporting() {
			r.Register(phase, models.WorkExporting, ts.Exporting(phase))
		}
	}
	return r
}

// Modelling returns the modelling routine for the given phase.
func (ts *TimeStepper) Modelling(phase models.PhaseKind) Func {
	return func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		settings := cfg.PhaseSettingsFor(phase)
		if settings.TimeStep > maxStableStep {
			return &InstabilityError{
				Phase:  phase,
				Step:   0,
				Reason: fmt.Sprintf("time step %g exceeds stability limit %g", settings.TimeStep, maxStableStep),
			}
		}

		total := settings.Steps()
		for step := 1; step <= total; step++ {
			if err := checkpoint(); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if ts.StepDelay > 0 {
				time.Sleep(ts.StepDelay)
			}
			progress(step, total)
		}
		return nil
	}
}

// Exporting returns the exporting routine for the given phase. It writes
// one placeholder file per configured export format.
func (ts *TimeStepper) Exporting(phase models.PhaseKind) Func {
	return func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		formats := cfg.Results.ExportFormats
		total := len(formats)
		for i, format := range formats {
			if err := checkpoint(); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if cfg.Results.SaveToDisk {
				if err := writeExport(cfg, phase, format); err != nil {
					return fmt.Errorf("exporting %s as %s: %w", phase, format, err)
				}
			}
			if ts.StepDelay > 0 {
				time.Sleep(ts.StepDelay)
			}
			progress(i+1, total)
		}
		return nil
	}
}

func writeExport(cfg *config.SimConfig, phase models.PhaseKind, format string) error {
	dir := cfg.Results.OutputDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s.%s", cfg.RunName, phase, format)
	settings := cfg.PhaseSettingsFor(phase)
	content := fmt.Sprintf("run,%s\nphase,%s\nsteps,%d\ntotal_time,%g\n",
		cfg.RunName, phase, settings.Steps(), settings.TotalTime)
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)
}
