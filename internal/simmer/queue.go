package simmer

import (
	"fmt"

	"github.com/betric/simmer/pkg/models"
)

// enqueueWorkers builds the worker queue from the currently queued phases,
// in phase order with each phase's modelling worker before its exporting
// worker. Preconditions: at least one phase queued and no worker active.
func (p *Proactor) enqueueWorkers() error {
	if !p.IsQueued() {
		return fmt.Errorf("cannot enqueue workers: %w", ErrNotQueued)
	}
	if p.IsWorking() {
		return fmt.Errorf("cannot enqueue workers: %w", ErrAlreadyWorking)
	}

	for _, phase := range p.phases {
		if phase.IsQueuedModelling() {
			p.queue = append(p.queue, newPhaseWorker(phase, models.WorkModelling, p.events, p.doneCh))
		}
		if phase.IsQueuedExporting() {
			p.queue = append(p.queue, newPhaseWorker(phase, models.WorkExporting, p.events, p.doneCh))
		}
	}
	return nil
}

// dequeueAll clears the queue unconditionally, abandoning workers that
// never started. Precondition: a worker is active.
func (p *Proactor) dequeueAll() error {
	if !p.IsWorking() {
		return fmt.Errorf("cannot dequeue workers: %w", ErrNoWorker)
	}
	p.queue = nil
	return nil
}

// popWorker drops the queue head after its worker finished.
func (p *Proactor) popWorker() {
	if len(p.queue) > 0 {
		p.queue = p.queue[1:]
	}
}
