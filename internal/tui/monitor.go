// Package tui provides the terminal run monitor for simmer.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betric/simmer/internal/simmer"
	"github.com/betric/simmer/pkg/models"
)

// ControlRequest is a user intent the monitor hands back to the control
// loop, which owns the proactor.
type ControlRequest int

const (
	RequestPause ControlRequest = iota
	RequestResume
	RequestStop
)

// EventMsg wraps a controller event for the monitor.
type EventMsg struct {
	Event simmer.Event
}

// RunDoneMsg signals that the run has ended.
type RunDoneMsg struct {
	Err error
}

// LogEntry represents an event line shown in the monitor.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// phaseRow is the displayed state of one pipeline phase.
type phaseRow struct {
	kind    models.PhaseKind
	state   models.SimmerState
	work    models.WorkKind
	current int
	total   int
}

// Monitor is the bubbletea model for a running simulation.
type Monitor struct {
	// runID labels the run in the header.
	runID string
	// state is the controller's aggregate state.
	state models.SimmerState
	// phases holds one display row per pipeline phase.
	phases []*phaseRow
	// bar renders the active worker's step progress.
	bar progress.Model
	// logs is the list of event lines.
	logs []LogEntry
	// width is the terminal width.
	width int
	// controls receives the user's pause/resume/stop intents.
	controls chan<- ControlRequest
	// quitting indicates the monitor is shutting down.
	quitting bool
	// done indicates the run has ended.
	done bool
	// doneErr holds the run's final error, if any.
	doneErr error
}

// NewMonitor creates a Monitor for the given run.
func NewMonitor(runID string, controls chan<- ControlRequest) *Monitor {
	m := &Monitor{
		runID:    runID,
		state:    models.StateUnqueued,
		bar:      progress.New(progress.WithDefaultGradient()),
		controls: controls,
		width:    80,
	}
	for _, kind := range models.AllPhaseKinds() {
		m.phases = append(m.phases, &phaseRow{kind: kind, state: models.StateUnqueued})
	}
	return m
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if !m.done {
				m.request(RequestStop)
			}
			return m, tea.Quit
		case "p":
			m.request(RequestPause)
		case "r":
			m.request(RequestResume)
		case "s":
			m.request(RequestStop)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-20, 60)

	case EventMsg:
		m.handleEvent(msg.Event)

	case RunDoneMsg:
		m.done = true
		m.doneErr = msg.Err
	}

	return m, nil
}

// request hands a control intent to the run loop without blocking the
// render loop.
func (m *Monitor) request(req ControlRequest) {
	select {
	case m.controls <- req:
	default:
	}
}

// handleEvent updates display state from a controller event.
func (m *Monitor) handleEvent(ev simmer.Event) {
	switch ev.Type {
	case simmer.EventStateChanged:
		m.state = ev.NewState
		m.log("INFO", fmt.Sprintf("state %s -> %s", ev.OldState, ev.NewState))

	case simmer.EventQueueChanged:
		if row := m.row(ev.Phase); row != nil {
			row.state = ev.NewState
		}

	case simmer.EventWorkerStarted:
		if row := m.row(ev.Phase); row != nil {
			row.state = ev.Work.State()
			row.work = ev.Work
			row.current, row.total = 0, 0
		}
		m.log("INFO", fmt.Sprintf("%s %s started", ev.Phase, ev.Work))

	case simmer.EventWorkerProgressed:
		if row := m.row(ev.Phase); row != nil {
			row.current, row.total = ev.Current, ev.Total
		}

	case simmer.EventWorkerPaused:
		if row := m.row(ev.Phase); row != nil {
			row.state = models.StatePaused
		}

	case simmer.EventWorkerResumed:
		if row := m.row(ev.Phase); row != nil {
			row.state = ev.Work.State()
		}

	case simmer.EventWorkerFailed:
		m.log("ERROR", fmt.Sprintf("%s %s failed: %v", ev.Phase, ev.Work, ev.Err))

	case simmer.EventWorkerSucceeded:
		m.log("INFO", fmt.Sprintf("%s %s succeeded", ev.Phase, ev.Work))

	case simmer.EventWorkerFinished:
		if row := m.row(ev.Phase); row != nil && ev.Success {
			row.state = models.StateFinished
		}
	}
}

func (m *Monitor) row(kind models.PhaseKind) *phaseRow {
	for _, row := range m.phases {
		if row.kind == kind {
			return row
		}
	}
	return nil
}

func (m *Monitor) log(level, message string) {
	m.logs = append(m.logs, LogEntry{Timestamp: time.Now(), Level: level, Message: message})
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	stateStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// View implements tea.Model.
func (m *Monitor) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	header := titleStyle.Render(fmt.Sprintf("simmer run %s", m.runID))
	status := stateStyle.Render(simmer.StateLabel(m.state))

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s\n\n%s",
		header, status, m.viewPhases(), m.viewProgress(), m.viewLogs(), m.viewFooter())
}

// viewPhases renders one row per pipeline phase.
func (m *Monitor) viewPhases() string {
	var view string
	for _, row := range m.phases {
		line := fmt.Sprintf("  %-14s %-10s", simmer.PhaseLabel(row.kind), row.state)
		if row.total > 0 && row.state.IsRunning() {
			line += fmt.Sprintf(" step %d of %d", row.current, row.total)
		}
		view += line + "\n"
	}
	return view
}

// viewProgress renders the active worker's progress bar.
func (m *Monitor) viewProgress() string {
	for _, row := range m.phases {
		if row.state.IsWorking() && row.total > 0 {
			return "  " + m.bar.ViewAs(float64(row.current)/float64(row.total))
		}
	}
	return ""
}

// viewLogs renders the most recent event lines (up to 10).
func (m *Monitor) viewLogs() string {
	if len(m.logs) == 0 {
		return dimStyle.Render("  no events yet")
	}

	start := 0
	if len(m.logs) > 10 {
		start = len(m.logs) - 10
	}

	var view string
	for _, entry := range m.logs[start:] {
		line := fmt.Sprintf("  %s %s", entry.Timestamp.Format("15:04:05"), entry.Message)
		if entry.Level == "ERROR" {
			line = errStyle.Render(line)
		} else {
			line = dimStyle.Render(line)
		}
		view += line + "\n"
	}
	return view
}

// viewFooter renders the footer with help text.
func (m *Monitor) viewFooter() string {
	if m.done {
		if m.doneErr != nil {
			return errStyle.Render(fmt.Sprintf("✗ run ended: %v | Press q to exit", m.doneErr))
		}
		return titleStyle.Render("✓ run complete | Press q to exit")
	}
	return dimStyle.Render("p pause | r resume | s stop | q quit")
}

// NewProgram creates a bubbletea program for the monitor. Controller
// events are forwarded to it via Send().
func NewProgram(runID string, controls chan<- ControlRequest) (*tea.Program, *Monitor) {
	m := NewMonitor(runID, controls)
	p := tea.NewProgram(m, tea.WithAltScreen())
	return p, m
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
