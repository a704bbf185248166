package simmer

import (
	"fmt"

	"github.com/betric/simmer/pkg/models"
)

// stateLabels maps each aggregate state to its human-readable status.
var stateLabels = map[models.SimmerState]string{
	models.StateUnqueued:  "Idle: no phase queued",
	models.StateQueued:    "Queued: ready to run",
	models.StateModelling: "Modelling",
	models.StateExporting: "Exporting",
	models.StatePaused:    "Paused",
	models.StateStopping:  "Stopping",
	models.StateFinished:  "Finished",
}

// phaseLabels maps each phase kind to its human-readable name.
var phaseLabels = map[models.PhaseKind]string{
	models.PhaseSeed: "seed",
	models.PhaseInit: "initialization",
	models.PhaseMain: "simulation",
}

// StateLabel returns the status text for a state.
func StateLabel(state models.SimmerState) string {
	if label, ok := stateLabels[state]; ok {
		return label
	}
	return string(state)
}

// PhaseLabel returns the human-readable name of a phase.
func PhaseLabel(kind models.PhaseKind) string {
	if label, ok := phaseLabels[kind]; ok {
		return label
	}
	return string(kind)
}

// StatusLine renders a one-line status for the given state, phase, and
// step progress. Progress is included only for running states with a
// known total.
func StatusLine(state models.SimmerState, phase models.PhaseKind, current, total int) string {
	label := StateLabel(state)
	if !state.IsRunning() {
		return label
	}
	if total > 0 {
		return fmt.Sprintf("%s %s phase (step %d of %d)", label, PhaseLabel(phase), current, total)
	}
	return fmt.Sprintf("%s %s phase", label, PhaseLabel(phase))
}

// Status returns the controller's current one-line status without
// progress detail.
func (p *Proactor) Status() string {
	if p.current != nil && p.state.IsRunning() {
		return StatusLine(p.state, p.current.Phase().Kind(), 0, 0)
	}
	return StateLabel(p.state)
}
