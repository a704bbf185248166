package simmer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/betric/simmer/internal/config"
	"github.com/betric/simmer/internal/runner"
	"github.com/betric/simmer/pkg/models"
)

// workerStatus is the worker's internal execution status.
type workerStatus int

const (
	workerIdle workerStatus = iota
	workerWorking
	workerPaused
)

// WorkerDone is the completion payload a worker delivers to the control
// goroutine when its run ends. Err is non-nil only for real routine
// failures; a cooperative stop delivers a nil Err with Success false.
type WorkerDone struct {
	Worker  *PhaseWorker
	Success bool
	Err     error
}

// PhaseWorker is a unit of background work bound to one phase and one
// work kind. It runs on its own goroutine and is cancelled and paused
// cooperatively: the work routine calls Checkpoint between self-consistent
// steps, and Checkpoint blocks on pause or returns the internal stop
// sentinel on stop.
//
// Pause, Resume, and Stop are safe to call from any goroutine. Everything
// else belongs to the control goroutine.
type PhaseWorker struct {
	phase *Phase
	work  models.WorkKind

	mu            sync.Mutex
	cond          *sync.Cond
	status        workerStatus
	stopRequested bool

	cfg    *config.SimConfig
	fn     runner.Func
	events *EventEmitter
	done   chan<- WorkerDone
}

func newPhaseWorker(phase *Phase, work models.WorkKind, events *EventEmitter, done chan<- WorkerDone) *PhaseWorker {
	w := &PhaseWorker{
		phase:  phase,
		work:   work,
		events: events,
		done:   done,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Phase returns the phase this worker is bound to.
func (w *PhaseWorker) Phase() *Phase { return w.phase }

// Work returns the worker's work kind.
func (w *PhaseWorker) Work() models.WorkKind { return w.work }

// State returns the state value corresponding to the worker's work kind.
func (w *PhaseWorker) State() models.SimmerState { return w.work.State() }

// finalize binds the routine and its private configuration copy just
// before launch.
func (w *PhaseWorker) finalize(fn runner.Func, cfg *config.SimConfig) {
	w.fn = fn
	w.cfg = cfg
}

// Run is the goroutine entry point. It emits started, invokes the work
// routine, and always emits finished with a success flag before delivering
// the completion payload to the control goroutine.
func (w *PhaseWorker) Run(ctx context.Context) {
	w.emit(Event{Type: EventWorkerStarted})

	w.mu.Lock()
	if w.stopRequested {
		w.mu.Unlock()
		log.Printf("[worker] %s %s halted before starting any work", w.phase.Kind(), w.work)
		w.finish(false, nil)
		return
	}
	w.status = workerWorking
	w.mu.Unlock()

	err := w.fn(ctx, w.cfg, w.Checkpoint, w.reportProgress)

	switch {
	case err == nil:
		w.emit(Event{Type: EventWorkerSucceeded})
		w.finish(true, nil)
	case errors.Is(err, errStopRequested):
		// Clean unwind on cancellation, not an error.
		w.finish(false, nil)
	default:
		w.emit(Event{Type: EventWorkerFailed, Err: err})
		w.finish(false, err)
	}
}

func (w *PhaseWorker) finish(success bool, err error) {
	w.mu.Lock()
	w.status = workerIdle
	w.mu.Unlock()

	w.emit(Event{Type: EventWorkerFinished, Success: success})
	w.done <- WorkerDone{Worker: w, Success: success, Err: err}
}

// Checkpoint is the cooperative cancellation point the work routine must
// call between self-consistent steps. It blocks while the worker is paused
// and returns a stop sentinel once a stop has been requested, which the
// routine must return unmodified.
func (w *PhaseWorker) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.status == workerPaused && !w.stopRequested {
		w.cond.Wait()
	}
	if w.stopRequested {
		return errStopRequested
	}
	return nil
}

// Pause asks the worker to block at its next checkpoint.
func (w *PhaseWorker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != workerWorking {
		return
	}
	w.status = workerPaused
	w.emit(Event{Type: EventWorkerPaused})
}

// Resume wakes a paused worker.
func (w *PhaseWorker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != workerPaused {
		return
	}
	w.status = workerWorking
	w.cond.Broadcast()
	w.emit(Event{Type: EventWorkerResumed})
}

// Stop requests a cooperative stop. It unconditionally returns the worker
// to idle and wakes any checkpoint blocked on a pause, so a paused worker
// observes the stop and unwinds instead of deadlocking.
func (w *PhaseWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopRequested = true
	w.status = workerIdle
	w.cond.Broadcast()
}

// IsPaused reports whether the worker is currently paused.
func (w *PhaseWorker) IsPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status == workerPaused
}

func (w *PhaseWorker) reportProgress(current, total int) {
	w.emit(Event{Type: EventWorkerProgressed, Current: current, Total: total})
}

func (w *PhaseWorker) emit(ev Event) {
	ev.Phase = w.phase.Kind()
	ev.Work = w.work
	ev.Timestamp = time.Now()
	w.events.Emit(ev)
}
