package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/betric/simmer/internal/control"
	"github.com/betric/simmer/internal/simmer"
	"github.com/betric/simmer/internal/state"
	"github.com/betric/simmer/internal/tui"
	"github.com/betric/simmer/pkg/models"
)

// runLoop owns the proactor for the duration of one run: it drains worker
// completions, applies control signals, and forwards events to either the
// headless printer or the TUI.
type runLoop struct {
	proactor    *simmer.Proactor
	events      *simmer.EventEmitter
	signals     *control.SignalManager
	db          *state.DB
	runID       string
	haltTimeout time.Duration
}

// Run drives the run to completion and records its outcome.
func (l *runLoop) Run(ctx context.Context, withTUI bool) error {
	rec := newRecorder(l.db, l.runID)
	printer := newEventPrinter()

	var prog *tea.Program
	controls := make(chan tui.ControlRequest, 4)
	if withTUI {
		prog, _ = tui.NewProgram(l.runID, controls)
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("[run] monitor exited: %v", err)
			}
		}()
	} else {
		fmt.Printf("%s %s (signals in %s)\n",
			color.CyanString("Starting run"), l.runID, l.signals.RunDir())
	}

	dispatch := func(ev simmer.Event) {
		rec.handle(ev)
		if withTUI {
			prog.Send(tui.EventMsg{Event: ev})
		} else {
			printer.print(ev)
		}
	}

	var runErr error
	if err := l.proactor.Start(ctx); err != nil {
		l.finish(models.RunFailed, err, rec, dispatch)
		return err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			if err := l.proactor.HaltAll(l.haltTimeout); err != nil {
				log.Printf("[run] halt: %v", err)
			}
			break loop

		case d := <-l.proactor.Completions():
			if err := l.proactor.ProcessCompletion(d); err != nil {
				runErr = err
				// A worker failure ends the run; the rest of the queue
				// is abandoned.
				if err := l.proactor.HaltAll(l.haltTimeout); err != nil {
					log.Printf("[run] halt after failure: %v", err)
				}
				break loop
			}
			if !l.proactor.IsWorking() {
				break loop
			}

		case ev := <-l.events.Events():
			dispatch(ev)

		case req := <-controls:
			l.applyControl(req)

		case <-ticker.C:
			l.applySignals()
		}
	}

	l.proactor.Wait()

	status := models.RunCompleted
	switch {
	case runErr != nil:
		status = models.RunFailed
	case l.proactor.State() == models.StateStopping:
		status = models.RunStopped
	}
	l.finish(status, runErr, rec, dispatch)

	if withTUI {
		prog.Send(tui.RunDoneMsg{Err: runErr})
		prog.Wait()
	}
	return runErr
}

// finish drains any buffered events, records the run's final status, and
// prints the closing line in headless mode.
func (l *runLoop) finish(status models.RunStatus, runErr error, rec *recorder, dispatch func(simmer.Event)) {
	for {
		select {
		case ev := <-l.events.Events():
			dispatch(ev)
			continue
		default:
		}
		break
	}

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	if err := l.db.FinishRun(l.runID, status, errText); err != nil {
		log.Printf("[run] recording final status: %v", err)
	}

	switch status {
	case models.RunCompleted:
		fmt.Printf("%s run %s complete\n", color.GreenString("✓"), l.runID)
	case models.RunStopped:
		fmt.Printf("%s run %s stopped\n", color.YellowString("■"), l.runID)
	case models.RunFailed:
		fmt.Printf("%s run %s failed: %v\n", color.RedString("✗"), l.runID, runErr)
	}
}

// applyControl maps a TUI key intent onto the proactor.
func (l *runLoop) applyControl(req tui.ControlRequest) {
	var err error
	switch req {
	case tui.RequestPause:
		err = l.proactor.Pause()
	case tui.RequestResume:
		err = l.proactor.Resume()
	case tui.RequestStop:
		err = l.proactor.Stop()
	}
	if err != nil && !errors.Is(err, simmer.ErrNoWorker) {
		log.Printf("[run] control request: %v", err)
	}
}

// applySignals consumes pending signal files and applies them.
func (l *runLoop) applySignals() {
	if l.signals.ShouldStop() {
		l.signals.Clear(control.SignalStop)
		if err := l.proactor.Stop(); err != nil && !errors.Is(err, simmer.ErrNoWorker) {
			log.Printf("[run] stop signal: %v", err)
		}
		return
	}
	if l.signals.ShouldPause() {
		l.signals.Clear(control.SignalPause)
		if err := l.proactor.Pause(); err != nil && !errors.Is(err, simmer.ErrNoWorker) {
			log.Printf("[run] pause signal: %v", err)
		}
	}
	if l.signals.ShouldResume() {
		l.signals.Clear(control.SignalResume)
		if err := l.proactor.Resume(); err != nil && !errors.Is(err, simmer.ErrNoWorker) {
			log.Printf("[run] resume signal: %v", err)
		}
	}
}

// recorder turns worker events into phase_results rows.
type recorder struct {
	db     *state.DB
	runID  string
	active map[string]*state.PhaseResult
}

func newRecorder(db *state.DB, runID string) *recorder {
	return &recorder{
		db:     db,
		runID:  runID,
		active: make(map[string]*state.PhaseResult),
	}
}

func (r *recorder) handle(ev simmer.Event) {
	key := string(ev.Phase) + "/" + string(ev.Work)
	switch ev.Type {
	case simmer.EventWorkerStarted:
		r.active[key] = &state.PhaseResult{
			RunID:     r.runID,
			Phase:     ev.Phase,
			Work:      ev.Work,
			StartedAt: ev.Timestamp,
		}

	case simmer.EventWorkerProgressed:
		if pr, ok := r.active[key]; ok {
			pr.Steps = ev.Current
		}

	case simmer.EventWorkerFailed:
		if pr, ok := r.active[key]; ok && ev.Err != nil {
			pr.Error = ev.Err.Error()
		}

	case simmer.EventWorkerFinished:
		pr, ok := r.active[key]
		if !ok {
			return
		}
		delete(r.active, key)

		finished := ev.Timestamp
		pr.FinishedAt = &finished
		switch {
		case ev.Success:
			pr.Outcome = state.OutcomeSucceeded
		case pr.Error != "":
			pr.Outcome = state.OutcomeFailed
		default:
			pr.Outcome = state.OutcomeStopped
		}
		if err := r.db.RecordPhaseResult(pr); err != nil {
			log.Printf("[run] recording %s %s result: %v", ev.Phase, ev.Work, err)
		}
	}
}

// eventPrinter renders controller events as colored headless output.
type eventPrinter struct {
	lastPct map[string]int
}

func newEventPrinter() *eventPrinter {
	return &eventPrinter{lastPct: make(map[string]int)}
}

func (p *eventPrinter) print(ev simmer.Event) {
	switch ev.Type {
	case simmer.EventStateChanged:
		fmt.Printf("%s %s -> %s\n", color.CyanString("state"), ev.OldState, ev.NewState)

	case simmer.EventWorkerStarted:
		fmt.Printf("%s %s %s\n", color.GreenString("▶"), ev.Phase, ev.Work)

	case simmer.EventWorkerProgressed:
		if ev.Total <= 0 {
			return
		}
		key := string(ev.Phase) + "/" + string(ev.Work)
		pct := ev.Current * 100 / ev.Total
		// Report in 10% increments to keep the output readable.
		if pct/10 > p.lastPct[key]/10 || ev.Current == ev.Total {
			p.lastPct[key] = pct
			fmt.Printf("  %s %s: step %d of %d (%d%%)\n", ev.Phase, ev.Work, ev.Current, ev.Total, pct)
		}

	case simmer.EventWorkerPaused:
		fmt.Printf("%s %s %s paused\n", color.YellowString("‖"), ev.Phase, ev.Work)

	case simmer.EventWorkerResumed:
		fmt.Printf("%s %s %s resumed\n", color.GreenString("▶"), ev.Phase, ev.Work)

	case simmer.EventWorkerSucceeded:
		fmt.Printf("%s %s %s succeeded\n", color.GreenString("✓"), ev.Phase, ev.Work)

	case simmer.EventWorkerFailed:
		fmt.Printf("%s %s %s failed: %v\n", color.RedString("✗"), ev.Phase, ev.Work, ev.Err)
	}
}
