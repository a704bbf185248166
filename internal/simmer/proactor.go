package simmer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/betric/simmer/internal/config"
	"github.com/betric/simmer/internal/runner"
	"github.com/betric/simmer/pkg/models"
)

// Proactor is the run controller: it owns the phases and the worker
// queue, starts, pauses, resumes, and stops workers one at a time, and
// derives its own aggregate state from phase and worker state.
//
// The Proactor is not thread-safe. All public operations, including
// ProcessCompletion and HaltAll, must be invoked from a single control
// goroutine; workers hand their results back to that goroutine through
// the Completions channel.
type Proactor struct {
	phases  []*Phase
	byKind  map[models.PhaseKind]*Phase
	queue   []*PhaseWorker
	current *PhaseWorker
	state   models.SimmerState

	cfg      *config.SimConfig
	registry *runner.Registry
	events   *EventEmitter

	doneCh chan WorkerDone
	wg     sync.WaitGroup
	runCtx context.Context
}

// NewProactor creates a Proactor over the fixed set of phases, consuming
// work routines from the given registry and reporting to the given
// emitter.
func NewProactor(cfg *config.SimConfig, registry *runner.Registry, events *EventEmitter) *Proactor {
	p := &Proactor{
		byKind:   make(map[models.PhaseKind]*Phase),
		state:    models.StateUnqueued,
		cfg:      cfg,
		registry: registry,
		events:   events,
		doneCh:   make(chan WorkerDone, 16),
		runCtx:   context.Background(),
	}
	for _, kind := range models.AllPhaseKinds() {
		phase := newPhase(kind, p.IsQueued, p.handleQueueChanged)
		p.phases = append(p.phases, phase)
		p.byKind[kind] = phase
	}
	return p
}

// State returns the controller's aggregate state.
func (p *Proactor) State() models.SimmerState { return p.state }

// Phases returns the phases in pipeline order.
func (p *Proactor) Phases() []*Phase { return p.phases }

// Phase returns the phase of the given kind.
func (p *Proactor) Phase(kind models.PhaseKind) *Phase { return p.byKind[kind] }

// IsQueued reports whether at least one phase is queued for work.
func (p *Proactor) IsQueued() bool {
	for _, phase := range p.phases {
		if phase.IsQueued() {
			return true
		}
	}
	return false
}

// IsWorking reports whether a worker is queued or running. The queue is
// non-empty exactly while the controller is working.
func (p *Proactor) IsWorking() bool { return len(p.queue) > 0 }

// IsWorkable reports whether the controller can accept a work toggle.
func (p *Proactor) IsWorkable() bool { return p.IsQueued() || p.IsWorking() }

// Completions returns the channel workers deliver their results on. The
// control goroutine must drain it and pass each payload to
// ProcessCompletion.
func (p *Proactor) Completions() <-chan WorkerDone { return p.doneCh }

// ToggleWork maps the single play/pause intent onto the controller: play
// resumes when a worker is active, starts otherwise; not-play pauses.
func (p *Proactor) ToggleWork(ctx context.Context, isPlaying bool) error {
	if !p.IsWorkable() {
		return fmt.Errorf("cannot toggle work: %w", ErrUnworkable)
	}
	if !isPlaying {
		return p.Pause()
	}
	if p.current != nil {
		return p.Resume()
	}
	return p.Start(ctx)
}

// Start builds the worker queue from the queued phases and launches its
// head. The context is retained for the whole run and handed to every
// worker routine launched from it.
func (p *Proactor) Start(ctx context.Context) error {
	if err := p.enqueueWorkers(); err != nil {
		return err
	}
	p.runCtx = ctx
	log.Printf("[proactor] starting run with %d queued workers", len(p.queue))
	return p.advanceQueue()
}

// Pause signals the active worker to block at its next checkpoint.
// Pausing an already-paused controller is a no-op.
func (p *Proactor) Pause() error {
	if p.state == models.StatePaused {
		return nil
	}
	if p.current == nil {
		return fmt.Errorf("cannot pause: %w", ErrNoWorker)
	}
	p.current.Pause()
	p.current.Phase().forceState(models.StatePaused)
	p.setState(models.StatePaused)
	return nil
}

// Resume wakes a paused worker. Resuming an already-running controller is
// a no-op.
func (p *Proactor) Resume() error {
	if p.state.IsRunning() {
		return nil
	}
	if p.current == nil {
		return fmt.Errorf("cannot resume: %w", ErrNoWorker)
	}
	p.current.Resume()
	p.current.Phase().forceState(p.current.State())
	p.setState(p.current.State())
	return nil
}

// Stop abandons the run: state becomes stopping before the worker is told
// to halt, so observers see the stop immediately even though the worker
// may take until its next checkpoint to unwind. Not-yet-started workers
// are dropped from the queue.
func (p *Proactor) Stop() error {
	if p.current == nil {
		return fmt.Errorf("cannot stop: %w", ErrNoWorker)
	}
	w := p.current
	w.Phase().forceState(models.StateStopping)
	p.setState(models.StateStopping)

	if err := p.dequeueAll(); err != nil {
		return err
	}
	p.current = nil
	w.Stop()
	return nil
}

// HaltAll is the forced-shutdown path: stop the active worker, then block
// up to timeout for it to report completion. A worker that misses the
// deadline is abandoned; its late completion payload is absorbed by the
// stale-worker guard. This is the only blocking wait in the controller.
func (p *Proactor) HaltAll(timeout time.Duration) error {
	if p.current == nil {
		return nil
	}
	w := p.current
	if err := p.Stop(); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case d := <-p.doneCh:
			if err := p.ProcessCompletion(d); err != nil {
				log.Printf("[proactor] completion during halt: %v", err)
			}
			if d.Worker == w {
				return nil
			}
		case <-timer.C:
			log.Printf("[proactor] %s %s worker did not halt within %s, abandoning",
				w.Phase().Kind(), w.Work(), timeout)
			return fmt.Errorf("%s %s worker did not halt within %s", w.Phase().Kind(), w.Work(), timeout)
		}
	}
}

// Wait blocks until every launched worker goroutine has returned. Only
// meaningful after HaltAll or after the final completion was processed.
func (p *Proactor) Wait() {
	p.wg.Wait()
}

// advanceQueue launches the queue head. It is event-driven: invoked once
// per start and re-entered by ProcessCompletion, each invocation handling
// exactly one queue transition. An empty queue is a no-op.
func (p *Proactor) advanceQueue() error {
	if len(p.queue) == 0 {
		return nil
	}
	w := p.queue[0]
	phase := w.Phase()

	fn, err := p.registry.Lookup(phase.Kind(), w.Work())
	if err != nil {
		return fmt.Errorf("launching %s %s: %w", phase.Kind(), w.Work(), err)
	}
	cfg, err := p.workerConfig()
	if err != nil {
		return fmt.Errorf("launching %s %s: %w", phase.Kind(), w.Work(), err)
	}
	w.finalize(fn, cfg)

	phase.forceState(w.State())
	p.setState(w.State())
	p.current = w

	log.Printf("[proactor] launching %s %s worker", phase.Kind(), w.Work())
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.Run(p.runCtx)
	}()
	return nil
}

// workerConfig deep-copies the live configuration and sanitizes the copy
// for unattended execution, so the worker shares no mutable state with
// the control goroutine's configuration.
func (p *Proactor) workerConfig() (*config.SimConfig, error) {
	cfg, err := p.cfg.Clone()
	if err != nil {
		return nil, err
	}
	cfg.Sanitize()
	return cfg, nil
}

// ProcessCompletion handles a worker's completion payload on the control
// goroutine. It guards against the race between a user stop and a late
// natural completion, finalizes the phase, pops the queue, and launches
// the next worker if any. A worker failure is translated into a
// user-facing error and returned to the caller; the caller decides
// whether the run continues.
func (p *Proactor) ProcessCompletion(d WorkerDone) error {
	if d.Worker != p.current {
		// A stop already dismissed this worker; its late completion is
		// not an error.
		log.Printf("[proactor] ignoring completion from dismissed %s %s worker",
			d.Worker.Phase().Kind(), d.Worker.Work())
		return nil
	}

	phase := d.Worker.Phase()
	if phase.State() != models.StateStopping {
		// Finished naturally rather than user-stopped. A stop always
		// wins over a late natural completion for the same worker.
		phase.clearQueued(d.Worker.Work())
		phase.forceState(models.StateFinished)
		p.setState(models.StateFinished)
	}

	p.popWorker()
	p.current = nil

	if err := p.advanceQueue(); err != nil {
		return err
	}
	if len(p.queue) == 0 && !p.IsQueued() {
		p.setState(models.StateUnqueued)
	}

	return p.translateFailure(d)
}

// translateFailure classifies a worker failure for the presentation
// layer: recognized instability gets its own message, anything else a
// generic one. The original error stays wrapped for inspection.
func (p *Proactor) translateFailure(d WorkerDone) error {
	if d.Err == nil {
		return nil
	}
	var instErr *runner.InstabilityError
	if errors.As(d.Err, &instErr) {
		return fmt.Errorf("simulation halted due to computational instability: %w", d.Err)
	}
	return fmt.Errorf("simulation halted with unexpected error: %w", d.Err)
}

// handleQueueChanged reacts to a phase rewriting its own state after a
// queue toggle.
func (p *Proactor) handleQueueChanged(phase *Phase) {
	p.events.Emit(Event{
		Type:      EventQueueChanged,
		Phase:     phase.Kind(),
		NewState:  phase.State(),
		Timestamp: time.Now(),
	})
	p.setStateFromPhase(phase)
}

// setStateFromPhase derives the aggregate state from a phase transition.
// The controller adopts the phase's state when the phase's new state is
// fixed or the controller's own state is fluid, except that a phase going
// unqueued while a sibling remains queued leaves the aggregate untouched.
func (p *Proactor) setStateFromPhase(phase *Phase) {
	s := phase.State()
	if !s.IsFixed() && !p.state.IsFluid() {
		return
	}
	if s == models.StateUnqueued && p.IsQueued() {
		return
	}
	p.setState(s)
}

// setState rewrites the aggregate state, notifying observers on change.
func (p *Proactor) setState(state models.SimmerState) {
	if p.state == state {
		return
	}
	old := p.state
	p.state = state
	log.Printf("[proactor] state %s -> %s", old, state)
	p.events.Emit(Event{
		Type:      EventStateChanged,
		OldState:  old,
		NewState:  state,
		Timestamp: time.Now(),
	})
}
