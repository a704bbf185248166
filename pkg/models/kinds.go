package models

// PhaseKind identifies one stage of the simulation pipeline. Phases are
// ordered: seed < init < main. Each phase depends on the output of the one
// before it.
type PhaseKind string

const (
	// PhaseSeed creates the cell cluster all later phases operate on.
	PhaseSeed PhaseKind = "seed"
	// PhaseInit initializes the seeded cluster to a steady state.
	PhaseInit PhaseKind = "init"
	// PhaseMain runs the full simulation on the initialized cluster.
	PhaseMain PhaseKind = "main"
)

// AllPhaseKinds returns every phase kind in simulation order.
func AllPhaseKinds() []PhaseKind {
	return []PhaseKind{PhaseSeed, PhaseInit, PhaseMain}
}

// Valid returns true if the kind is a known value.
func (k PhaseKind) Valid() bool {
	switch k {
	case PhaseSeed, PhaseInit, PhaseMain:
		return true
	default:
		return false
	}
}

// Order returns the position of this kind in simulation order, starting at
// zero. Unknown kinds sort last.
func (k PhaseKind) Order() int {
	switch k {
	case PhaseSeed:
		return 0
	case PhaseInit:
		return 1
	case PhaseMain:
		return 2
	default:
		return 3
	}
}

// SupportsExporting returns true if the phase produces results that can be
// exported. Seeding only builds the cluster geometry, so it has nothing to
// export.
func (k PhaseKind) SupportsExporting() bool {
	return k == PhaseInit || k == PhaseMain
}

// String returns the kind as a string.
func (k PhaseKind) String() string {
	return string(k)
}

// WorkKind identifies the kind of work a phase worker performs.
type WorkKind string

const (
	// WorkModelling runs the numerical model for a phase.
	WorkModelling WorkKind = "modelling"
	// WorkExporting writes a phase's results to disk.
	WorkExporting WorkKind = "exporting"
)

// Valid returns true if the kind is a known value.
func (k WorkKind) Valid() bool {
	return k == WorkModelling || k == WorkExporting
}

// State returns the simmer state corresponding to this kind of work being
// actively executed.
func (k WorkKind) State() SimmerState {
	if k == WorkExporting {
		return StateExporting
	}
	return StateModelling
}

// String returns the kind as a string.
func (k WorkKind) String() string {
	return string(k)
}
