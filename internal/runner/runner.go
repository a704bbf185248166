// Package runner defines the boundary between the run controller and the
// routines that perform actual simulation work. A runner is an opaque
// callable selected by (phase kind, work kind); the controller invokes it
// with a private configuration copy, a cooperative check-point, and a
// progress sink, and cares only about its error result.
package runner

import (
	"context"
	"fmt"

	"github.com/betric/simmer/internal/config"
	"github.com/betric/simmer/pkg/models"
)

// Func is the work routine contract. The routine must call checkpoint
// between self-consistent steps; a non-nil checkpoint error means a stop
// was requested and the routine must return it unmodified without further
// work. progress reports (current, total) step counts to the controller.
type Func func(ctx context.Context, cfg *config.SimConfig, checkpoint func() error, progress func(current, total int)) error

// Registry maps (phase kind, work kind) pairs to work routines. It is
// populated at startup and read-only afterwards, so it needs no locking.
type Registry struct {
	funcs map[registryKey]Func
}

type registryKey struct {
	phase models.PhaseKind
	work  models.WorkKind
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[registryKey]Func)}
}

// Register binds a work routine to a (phase, work) pair, replacing any
// previous binding.
func (r *Registry) Register(phase models.PhaseKind, work models.WorkKind, fn Func) {
	r.funcs[registryKey{phase: phase, work: work}] = fn
}

// Lookup returns the routine bound to the given (phase, work) pair.
func (r *Registry) Lookup(phase models.PhaseKind, work models.WorkKind) (Func, error) {
	fn, ok := r.funcs[registryKey{phase: phase, work: work}]
	if !ok {
		return nil, fmt.Errorf("no runner registered for %s %s", phase, work)
	}
	return fn, nil
}

// InstabilityError reports that a simulation became numerically unstable
// and could not continue. The controller translates it into a dedicated
// user-facing classification.
type InstabilityError struct {
	// Phase is the phase whose solve went unstable.
	Phase models.PhaseKind
	// Step is the solver step at which instability was detected.
	Step int
	// Reason describes the detected condition.
	Reason string
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("%s phase unstable at step %d: %s", e.Phase, e.Step, e.Reason)
}
