package models

// RunStatus represents the persisted outcome of a simulation run.
type RunStatus string

const (
	// RunActive indicates the run is currently executing.
	RunActive RunStatus = "active"
	// RunCompleted indicates every queued worker finished successfully.
	RunCompleted RunStatus = "completed"
	// RunStopped indicates the user stopped the run before completion.
	RunStopped RunStatus = "stopped"
	// RunFailed indicates a worker failed and the run halted.
	RunFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunActive, RunCompleted, RunStopped, RunFailed:
		return true
	default:
		return false
	}
}
