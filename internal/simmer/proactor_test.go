package simmer

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/betric/simmer/internal/config"
	"github.com/betric/simmer/internal/runner"
	"github.com/betric/simmer/pkg/models"
)

func newTestProactor(reg *runner.Registry) *Proactor {
	return NewProactor(config.Default(), reg, NewEventEmitter(64))
}

// instantRunner completes immediately without work.
func instantRunner() runner.Func {
	return func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		return checkpoint()
	}
}

// pollingRunner loops at its checkpoint until release is closed, counting
// completed steps.
func pollingRunner(release <-chan struct{}, steps *atomic.Int32) runner.Func {
	return func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		for {
			if err := checkpoint(); err != nil {
				return err
			}
			if steps != nil {
				steps.Add(1)
			}
			select {
			case <-release:
				return nil
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

func waitCompletion(t *testing.T, p *Proactor) WorkerDone {
	t.Helper()
	select {
	case d := <-p.Completions():
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker completion")
		return WorkerDone{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueueOrdering(t *testing.T) {
	p := newTestProactor(runner.NewRegistry())
	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	p.Phase(models.PhaseInit).ToggleQueuedModelling(true)
	p.Phase(models.PhaseInit).ToggleQueuedExporting(true)
	p.Phase(models.PhaseMain).ToggleQueuedModelling(true)
	p.Phase(models.PhaseMain).ToggleQueuedExporting(true)

	if err := p.enqueueWorkers(); err != nil {
		t.Fatalf("enqueueWorkers failed: %v", err)
	}

	want := []struct {
		phase models.PhaseKind
		work  models.WorkKind
	}{
		{models.PhaseSeed, models.WorkModelling},
		{models.PhaseInit, models.WorkModelling},
		{models.PhaseInit, models.WorkExporting},
		{models.PhaseMain, models.WorkModelling},
		{models.PhaseMain, models.WorkExporting},
	}
	if len(p.queue) != len(want) {
		t.Fatalf("expected %d workers, got %d", len(want), len(p.queue))
	}
	for i, w := range want {
		got := p.queue[i]
		if got.Phase().Kind() != w.phase || got.Work() != w.work {
			t.Errorf("queue[%d] = %s %s, want %s %s", i, got.Phase().Kind(), got.Work(), w.phase, w.work)
		}
	}
	if !p.IsWorking() {
		t.Error("expected non-empty queue to mean working")
	}
}

func TestStartPreconditions(t *testing.T) {
	p := newTestProactor(runner.NewRegistry())
	if err := p.Start(context.Background()); !errors.Is(err, ErrNotQueued) {
		t.Errorf("expected ErrNotQueued, got %v", err)
	}

	release := make(chan struct{})
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, pollingRunner(release, nil))
	p = newTestProactor(reg)
	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyWorking) {
		t.Errorf("expected ErrAlreadyWorking, got %v", err)
	}

	close(release)
	d := waitCompletion(t, p)
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}
	p.Wait()
}

func TestNaturalCompletion(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, instantRunner())
	p := newTestProactor(reg)

	seed := p.Phase(models.PhaseSeed)
	seed.ToggleQueuedModelling(true)
	if p.State() != models.StateQueued {
		t.Fatalf("expected state queued after toggle, got %s", p.State())
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if p.State() != models.StateModelling {
		t.Errorf("expected state modelling after start, got %s", p.State())
	}
	if !p.IsWorking() || !p.State().IsWorking() {
		t.Error("working predicate and state partition disagree while running")
	}

	d := waitCompletion(t, p)
	if !d.Success {
		t.Errorf("expected successful completion, got err=%v", d.Err)
	}
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}

	if seed.State() != models.StateFinished {
		t.Errorf("expected seed phase finished, got %s", seed.State())
	}
	if p.IsWorking() {
		t.Error("expected empty queue after final completion")
	}
	if p.State() != models.StateUnqueued {
		t.Errorf("expected state unqueued with nothing else queued, got %s", p.State())
	}
	if seed.IsQueuedModelling() {
		t.Error("expected completion to consume the modelling queue flag")
	}
	p.Wait()
}

func TestCompletionWithSiblingQueuedDuringRun(t *testing.T) {
	release := make(chan struct{})
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, pollingRunner(release, nil))
	p := newTestProactor(reg)

	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Queueing another phase mid-run must not disturb the running state.
	p.Phase(models.PhaseInit).ToggleQueuedModelling(true)
	if p.State() != models.StateModelling {
		t.Errorf("expected state modelling after mid-run toggle, got %s", p.State())
	}

	close(release)
	d := waitCompletion(t, p)
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}

	// init was not part of this run's queue but remains queued, so the
	// aggregate stays finished instead of reverting to unqueued.
	if p.State() != models.StateFinished {
		t.Errorf("expected state finished with init still queued, got %s", p.State())
	}
	p.Wait()
}

func TestStopAbandonsQueuedWorkers(t *testing.T) {
	var launches atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		launches.Add(1)
		return pollingRunner(release, nil)(ctx, cfg, checkpoint, progress)
	}
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, fn)
	reg.Register(models.PhaseInit, models.WorkModelling, fn)
	p := newTestProactor(reg)

	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	p.Phase(models.PhaseInit).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(p.queue) != 2 {
		t.Fatalf("expected 2 queued workers, got %d", len(p.queue))
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if p.State() != models.StateStopping {
		t.Errorf("expected state stopping, got %s", p.State())
	}
	if p.Phase(models.PhaseSeed).State() != models.StateStopping {
		t.Errorf("expected seed phase stopping, got %s", p.Phase(models.PhaseSeed).State())
	}
	if p.IsWorking() {
		t.Error("expected queue cleared by stop")
	}

	// The stopped worker unwinds at its next checkpoint; its late
	// completion is absorbed without a state change.
	d := waitCompletion(t, p)
	if d.Success || d.Err != nil {
		t.Errorf("expected clean stop unwind, got success=%v err=%v", d.Success, d.Err)
	}
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}
	if p.State() != models.StateStopping {
		t.Errorf("expected state still stopping after late completion, got %s", p.State())
	}
	p.Wait()

	if got := launches.Load(); got != 1 {
		t.Errorf("expected only the first worker to launch, got %d launches", got)
	}
}

func TestStopBeatsLateNaturalCompletion(t *testing.T) {
	release := make(chan struct{})
	// Checks its checkpoint only once up front, then finishes naturally
	// on release regardless of any stop request.
	fn := func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		if err := checkpoint(); err != nil {
			return err
		}
		<-release
		return nil
	}
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, fn)
	p := newTestProactor(reg)

	seed := p.Phase(models.PhaseSeed)
	seed.ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	close(release)

	d := waitCompletion(t, p)
	if !d.Success {
		t.Fatalf("expected a natural success completion, got err=%v", d.Err)
	}
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}

	// The stop wins: neither the phase nor the aggregate may move to
	// finished after stopping.
	if seed.State() != models.StateStopping {
		t.Errorf("expected seed phase to stay stopping, got %s", seed.State())
	}
	if p.State() != models.StateStopping {
		t.Errorf("expected aggregate to stay stopping, got %s", p.State())
	}
	p.Wait()
}

func TestPauseResume(t *testing.T) {
	var steps atomic.Int32
	release := make(chan struct{})
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, pollingRunner(release, &steps))
	p := newTestProactor(reg)

	seed := p.Phase(models.PhaseSeed)
	seed.ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "worker to make progress", func() bool { return steps.Load() > 0 })

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if p.State() != models.StatePaused || seed.State() != models.StatePaused {
		t.Errorf("expected paused states, got proactor=%s phase=%s", p.State(), seed.State())
	}

	// Pausing again is a no-op.
	if err := p.Pause(); err != nil {
		t.Errorf("expected idempotent pause, got %v", err)
	}

	// The worker settles at its checkpoint and stops making progress.
	time.Sleep(30 * time.Millisecond)
	before := steps.Load()
	time.Sleep(60 * time.Millisecond)
	if after := steps.Load(); after != before {
		t.Errorf("expected no progress while paused, went %d -> %d", before, after)
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if p.State() != models.StateModelling || seed.State() != models.StateModelling {
		t.Errorf("expected modelling states after resume, got proactor=%s phase=%s", p.State(), seed.State())
	}
	waitFor(t, "worker to resume progress", func() bool { return steps.Load() > before })

	// Resuming again is a no-op.
	if err := p.Resume(); err != nil {
		t.Errorf("expected idempotent resume, got %v", err)
	}

	close(release)
	d := waitCompletion(t, p)
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}
	p.Wait()
}

func TestPauseWithoutWorker(t *testing.T) {
	p := newTestProactor(runner.NewRegistry())
	if err := p.Pause(); !errors.Is(err, ErrNoWorker) {
		t.Errorf("expected ErrNoWorker, got %v", err)
	}
	if p.State() != models.StateUnqueued {
		t.Errorf("expected state unchanged by failed pause, got %s", p.State())
	}
	if err := p.Stop(); !errors.Is(err, ErrNoWorker) {
		t.Errorf("expected ErrNoWorker from stop, got %v", err)
	}
}

func TestInstabilityTranslation(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register(models.PhaseMain, models.WorkModelling, func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		return &runner.InstabilityError{Phase: models.PhaseMain, Step: 7, Reason: "solution diverged"}
	})
	p := newTestProactor(reg)

	p.Phase(models.PhaseMain).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	d := waitCompletion(t, p)
	if d.Success || d.Err == nil {
		t.Fatalf("expected failure payload, got success=%v err=%v", d.Success, d.Err)
	}

	err := p.ProcessCompletion(d)
	if err == nil {
		t.Fatal("expected translated failure from ProcessCompletion")
	}
	if !strings.Contains(err.Error(), "computational instability") {
		t.Errorf("expected instability classification, got %v", err)
	}
	var instErr *runner.InstabilityError
	if !errors.As(err, &instErr) {
		t.Errorf("expected wrapped InstabilityError, got %v", err)
	}
	p.Wait()
}

func TestGenericFailureTranslation(t *testing.T) {
	boom := errors.New("disk full")
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		return boom
	})
	p := newTestProactor(reg)

	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	d := waitCompletion(t, p)
	err := p.ProcessCompletion(d)
	if err == nil || !strings.Contains(err.Error(), "unexpected error") {
		t.Errorf("expected generic classification, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected original error wrapped, got %v", err)
	}
	p.Wait()
}

func TestToggleWork(t *testing.T) {
	ctx := context.Background()
	p := newTestProactor(runner.NewRegistry())
	if err := p.ToggleWork(ctx, true); !errors.Is(err, ErrUnworkable) {
		t.Errorf("expected ErrUnworkable, got %v", err)
	}

	release := make(chan struct{})
	var steps atomic.Int32
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, pollingRunner(release, &steps))
	p = newTestProactor(reg)
	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)

	if err := p.ToggleWork(ctx, true); err != nil {
		t.Fatalf("ToggleWork start failed: %v", err)
	}
	if p.State() != models.StateModelling {
		t.Errorf("expected modelling after play toggle, got %s", p.State())
	}
	if err := p.ToggleWork(ctx, false); err != nil {
		t.Fatalf("ToggleWork pause failed: %v", err)
	}
	if p.State() != models.StatePaused {
		t.Errorf("expected paused after pause toggle, got %s", p.State())
	}
	if err := p.ToggleWork(ctx, true); err != nil {
		t.Fatalf("ToggleWork resume failed: %v", err)
	}
	if p.State() != models.StateModelling {
		t.Errorf("expected modelling after resume toggle, got %s", p.State())
	}

	close(release)
	d := waitCompletion(t, p)
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}
	p.Wait()
}

func TestSequentialWorkersAdvance(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, instantRunner())
	reg.Register(models.PhaseInit, models.WorkModelling, instantRunner())
	reg.Register(models.PhaseInit, models.WorkExporting, instantRunner())
	p := newTestProactor(reg)

	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	p.Phase(models.PhaseInit).ToggleQueuedModelling(true)
	p.Phase(models.PhaseInit).ToggleQueuedExporting(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var seen []models.WorkKind
	for p.IsWorking() {
		d := waitCompletion(t, p)
		seen = append(seen, d.Worker.Work())
		if err := p.ProcessCompletion(d); err != nil {
			t.Fatalf("ProcessCompletion failed: %v", err)
		}
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 completions, got %d", len(seen))
	}
	if seen[1] != models.WorkModelling || seen[2] != models.WorkExporting {
		t.Errorf("expected init modelling before exporting, got %v", seen)
	}
	if p.State() != models.StateUnqueued {
		t.Errorf("expected unqueued after full run, got %s", p.State())
	}
	if p.Phase(models.PhaseInit).State() != models.StateFinished {
		t.Errorf("expected init finished, got %s", p.Phase(models.PhaseInit).State())
	}
	p.Wait()
}

func TestHaltAll(t *testing.T) {
	release := make(chan struct{})
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, pollingRunner(release, nil))
	p := newTestProactor(reg)

	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := p.HaltAll(2 * time.Second); err != nil {
		t.Fatalf("HaltAll failed: %v", err)
	}
	if p.State() != models.StateStopping {
		t.Errorf("expected state stopping after halt, got %s", p.State())
	}
	p.Wait()

	// Halting with nothing running is a no-op.
	if err := p.HaltAll(time.Second); err != nil {
		t.Errorf("expected no-op halt, got %v", err)
	}
}

func TestHaltAllTimeout(t *testing.T) {
	release := make(chan struct{})
	// Never checkpoints, so it cannot observe the stop request.
	fn := func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error {
		<-release
		return nil
	}
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, fn)
	p := newTestProactor(reg)

	p.Phase(models.PhaseSeed).ToggleQueuedModelling(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := p.HaltAll(50 * time.Millisecond); err == nil {
		t.Error("expected timeout error from HaltAll")
	}

	close(release)
	d := waitCompletion(t, p)
	if err := p.ProcessCompletion(d); err != nil {
		t.Fatalf("ProcessCompletion failed: %v", err)
	}
	p.Wait()
}

func TestRequeueAfterFinish(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register(models.PhaseSeed, models.WorkModelling, instantRunner())
	p := newTestProactor(reg)

	seed := p.Phase(models.PhaseSeed)
	for run := 0; run < 2; run++ {
		seed.ToggleQueuedModelling(true)
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("run %d: Start failed: %v", run, err)
		}
		d := waitCompletion(t, p)
		if err := p.ProcessCompletion(d); err != nil {
			t.Fatalf("run %d: ProcessCompletion failed: %v", run, err)
		}
		if seed.State() != models.StateFinished {
			t.Errorf("run %d: expected seed finished, got %s", run, seed.State())
		}
	}
	p.Wait()
}
