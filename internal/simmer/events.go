// Package simmer implements the simulation run controller: phase queue
// bookkeeping, the worker state machines, and the proactor that sequences
// background work one worker at a time.
package simmer

import (
	"time"

	"github.com/betric/simmer/pkg/models"
)

// EventType represents the kind of controller event.
type EventType string

const (
	// EventQueueChanged indicates a phase's queue state was rewritten.
	EventQueueChanged EventType = "queue_changed"
	// EventStateChanged indicates the proactor's aggregate state changed.
	EventStateChanged EventType = "state_changed"
	// EventWorkerStarted indicates a worker began executing.
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerPaused indicates a worker was told to pause.
	EventWorkerPaused EventType = "worker_paused"
	// EventWorkerResumed indicates a paused worker was woken.
	EventWorkerResumed EventType = "worker_resumed"
	// EventWorkerProgressed carries a worker's step progress.
	EventWorkerProgressed EventType = "worker_progressed"
	// EventWorkerFailed indicates a worker's routine returned an error.
	EventWorkerFailed EventType = "worker_failed"
	// EventWorkerSucceeded indicates a worker's routine completed cleanly.
	EventWorkerSucceeded EventType = "worker_succeeded"
	// EventWorkerFinished always follows a worker's run, successful or not.
	EventWorkerFinished EventType = "worker_finished"
)

// Event represents a notification emitted by the controller for external
// observers such as the CLI printer or the TUI.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Phase is the related phase, if applicable.
	Phase models.PhaseKind
	// Work is the related work kind, if applicable.
	Work models.WorkKind
	// OldState and NewState carry a state transition for state_changed.
	OldState models.SimmerState
	NewState models.SimmerState
	// Current and Total carry step progress for worker_progressed.
	Current int
	Total   int
	// Success reports the outcome for worker_finished.
	Success bool
	// Err carries the failure for worker_failed.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
