// Package state provides SQLite-based run-history persistence for simmer.
package state

import (
	"io"

	"github.com/betric/simmer/pkg/models"
)

// RunStore handles run-related persistence operations.
type RunStore interface {
	CreateRun(r *Run) error
	GetRun(id string) (*Run, error)
	FinishRun(id string, status models.RunStatus, runErr string) error
	ListRuns(limit int) ([]Run, error)
}

// PhaseResultStore handles per-worker outcome persistence.
type PhaseResultStore interface {
	RecordPhaseResult(pr *PhaseResult) error
	ListPhaseResults(runID string) ([]PhaseResult, error)
	HasSucceededModelling(phase models.PhaseKind) (bool, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for run-history persistence.
// This interface allows the CLI to work with any backend without
// depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	RunStore
	PhaseResultStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store            = (*DB)(nil)
	_ Migrator         = (*DB)(nil)
	_ RunStore         = (*DB)(nil)
	_ PhaseResultStore = (*DB)(nil)
)
