package simmer

import "errors"

// Precondition errors. These indicate a sequencing bug in the caller, not
// a runtime fault, and are raised synchronously at the call site.
var (
	// ErrNotQueued is returned when a start is requested with no phase
	// queued for any work.
	ErrNotQueued = errors.New("no phase is queued for work")
	// ErrAlreadyWorking is returned when a start is requested while a
	// worker is already queued or running.
	ErrAlreadyWorking = errors.New("a worker is already active")
	// ErrUnworkable is returned when work is toggled while the controller
	// is neither queued nor working.
	ErrUnworkable = errors.New("controller is not workable")
	// ErrNoWorker is returned when pause, resume, or stop is requested
	// while no worker is active.
	ErrNoWorker = errors.New("no worker is active")
)

// errStopRequested unwinds a worker's call stack on a stop request. It is
// caught at the worker's own run boundary and never surfaces to any
// external observer.
var errStopRequested = errors.New("stop requested")
