package simmer

import (
	"log"

	"github.com/betric/simmer/pkg/models"
)

// Phase represents one stage of the simulation pipeline and tracks whether
// it is queued for modelling and/or exporting. A Phase is created once per
// kind at controller construction and lives for the controller's lifetime.
//
// Phase is not thread-safe. Like the Proactor that owns it, it must only
// be touched from the single control goroutine.
type Phase struct {
	kind models.PhaseKind

	queuedModelling bool
	queuedExporting bool
	modellingLocked bool

	state models.SimmerState

	// anyQueued reports whether any phase anywhere is queued, so an
	// unqueue toggle on this phase does not prematurely unqueue the
	// whole controller while siblings remain queued.
	anyQueued func() bool
	// onQueueChanged is invoked whenever this phase's state was actually
	// rewritten by a toggle, not on every toggle.
	onQueueChanged func(*Phase)
}

func newPhase(kind models.PhaseKind, anyQueued func() bool, onQueueChanged func(*Phase)) *Phase {
	return &Phase{
		kind:           kind,
		state:          models.StateUnqueued,
		anyQueued:      anyQueued,
		onQueueChanged: onQueueChanged,
	}
}

// Kind returns the phase's identity.
func (p *Phase) Kind() models.PhaseKind { return p.kind }

// State returns the phase's current state.
func (p *Phase) State() models.SimmerState { return p.state }

// IsQueued reports whether the phase is queued for any work.
func (p *Phase) IsQueued() bool { return p.queuedModelling || p.queuedExporting }

// IsQueuedModelling reports whether the phase is queued for modelling.
func (p *Phase) IsQueuedModelling() bool { return p.queuedModelling }

// IsQueuedExporting reports whether the phase is queued for exporting.
func (p *Phase) IsQueuedExporting() bool { return p.queuedExporting }

// IsModellingLocked reports whether the modelling toggle is disabled.
func (p *Phase) IsModellingLocked() bool { return p.modellingLocked }

// ToggleQueuedModelling queues or unqueues the phase for modelling. The
// toggle is ignored while modelling is locked.
func (p *Phase) ToggleQueuedModelling(queued bool) {
	if p.modellingLocked {
		log.Printf("[phase] %s modelling toggle ignored: locked", p.kind)
		return
	}
	p.queuedModelling = queued
	p.refreshQueueState()
}

// ToggleQueuedExporting queues or unqueues the phase for exporting. The
// toggle is ignored for phases that produce nothing to export.
func (p *Phase) ToggleQueuedExporting(queued bool) {
	if !p.kind.SupportsExporting() {
		log.Printf("[phase] %s exporting toggle ignored: phase exports nothing", p.kind)
		return
	}
	p.queuedExporting = queued
	p.refreshQueueState()
}

// LockModelling disables or enables the modelling toggle. Used when a
// later stage forces modelling as a prerequisite.
func (p *Phase) LockModelling(locked bool) {
	p.modellingLocked = locked
}

// refreshQueueState rewrites the phase's state from its queue flags, but
// only while the state is fluid. A fixed state means the phase is actively
// running and must not be silently reinterpreted; the toggle is recorded
// and the state left untouched.
func (p *Phase) refreshQueueState() {
	if !p.state.IsFluid() {
		return
	}
	switch {
	case p.IsQueued():
		p.setState(models.StateQueued)
	case !p.anyQueued():
		p.setState(models.StateUnqueued)
	}
}

// setState rewrites the phase's state and, when the value actually
// changed, notifies the controller.
func (p *Phase) setState(state models.SimmerState) {
	if p.state == state {
		return
	}
	p.state = state
	if p.onQueueChanged != nil {
		p.onQueueChanged(p)
	}
}

// forceState rewrites the phase's state without notifying the controller.
// Used by the controller itself when it is already deriving its own state
// from the same transition.
func (p *Phase) forceState(state models.SimmerState) {
	p.state = state
}

// clearQueued drops the queue flag for the given work kind without the
// fluid-state rewrite, bypassing the modelling lock. The controller calls
// this when a worker finishes so the flag is consumed but the phase's
// finished state survives.
func (p *Phase) clearQueued(work models.WorkKind) {
	switch work {
	case models.WorkModelling:
		p.queuedModelling = false
	case models.WorkExporting:
		p.queuedExporting = false
	}
}
