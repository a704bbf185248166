// Package models defines the shared types for simulation run control:
// simmer states, phase kinds, work kinds, and run statuses.
package models

// SimmerState represents the run state of a simulation phase or of the
// proactor aggregating all phases.
type SimmerState string

const (
	// StateUnqueued indicates the phase is not queued for any work.
	StateUnqueued SimmerState = "unqueued"
	// StateQueued indicates the phase is queued but no worker has started.
	StateQueued SimmerState = "queued"
	// StateModelling indicates a modelling worker is executing.
	StateModelling SimmerState = "modelling"
	// StateExporting indicates an exporting worker is executing.
	StateExporting SimmerState = "exporting"
	// StatePaused indicates the active worker is blocked at a check-point.
	StatePaused SimmerState = "paused"
	// StateStopping indicates a stop was requested and the worker is unwinding.
	StateStopping SimmerState = "stopping"
	// StateFinished indicates the most recent worker ran to completion.
	StateFinished SimmerState = "finished"
)

// Valid returns true if the state is a known value.
func (s SimmerState) Valid() bool {
	switch s {
	case StateUnqueued, StateQueued, StateModelling, StateExporting,
		StatePaused, StateStopping, StateFinished:
		return true
	default:
		return false
	}
}

// IsFluid returns true for low-priority states, freely overridden by any
// other state.
func (s SimmerState) IsFluid() bool {
	switch s {
	case StateUnqueued, StateQueued, StateFinished, StateStopping:
		return true
	default:
		return false
	}
}

// IsFixed returns true for high-priority states, preserved until explicitly
// resolved.
func (s SimmerState) IsFixed() bool {
	return s.Valid() && !s.IsFluid()
}

// IsRunning returns true while a worker is actively executing.
func (s SimmerState) IsRunning() bool {
	return s == StateModelling || s == StateExporting
}

// IsWorking returns true while a worker exists, running or paused.
func (s SimmerState) IsWorking() bool {
	return s.IsRunning() || s == StatePaused
}

// IsUnworkable returns true for states in which no work can be started.
func (s SimmerState) IsUnworkable() bool {
	return s == StateUnqueued || s == StateStopping
}

// String returns the state as a string.
func (s SimmerState) String() string {
	return string(s)
}
