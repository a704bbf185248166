package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/betric/simmer/internal/simmer"
	"github.com/betric/simmer/pkg/models"
)

func TestMonitorTracksWorkerEvents(t *testing.T) {
	m := NewMonitor("run-1234", make(chan ControlRequest, 1))

	m.handleEvent(simmer.Event{
		Type:  simmer.EventWorkerStarted,
		Phase: models.PhaseSeed,
		Work:  models.WorkModelling,
	})
	row := m.row(models.PhaseSeed)
	if row.state != models.StateModelling {
		t.Errorf("expected seed row modelling, got %s", row.state)
	}

	m.handleEvent(simmer.Event{
		Type:    simmer.EventWorkerProgressed,
		Phase:   models.PhaseSeed,
		Work:    models.WorkModelling,
		Current: 4,
		Total:   10,
	})
	if row.current != 4 || row.total != 10 {
		t.Errorf("expected progress 4/10, got %d/%d", row.current, row.total)
	}

	m.handleEvent(simmer.Event{
		Type:    simmer.EventWorkerFinished,
		Phase:   models.PhaseSeed,
		Work:    models.WorkModelling,
		Success: true,
	})
	if row.state != models.StateFinished {
		t.Errorf("expected seed row finished, got %s", row.state)
	}
}

func TestMonitorStateChange(t *testing.T) {
	m := NewMonitor("run-1234", make(chan ControlRequest, 1))
	m.handleEvent(simmer.Event{
		Type:     simmer.EventStateChanged,
		OldState: models.StateQueued,
		NewState: models.StateModelling,
	})
	if m.state != models.StateModelling {
		t.Errorf("expected aggregate modelling, got %s", m.state)
	}
	if len(m.logs) != 1 {
		t.Errorf("expected one log line, got %d", len(m.logs))
	}
}

func TestMonitorKeysSendControlRequests(t *testing.T) {
	controls := make(chan ControlRequest, 3)
	m := NewMonitor("run-1234", controls)

	tests := []struct {
		key  string
		want ControlRequest
	}{
		{"p", RequestPause},
		{"r", RequestResume},
		{"s", RequestStop},
	}
	for _, tt := range tests {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)})
		select {
		case got := <-controls:
			if got != tt.want {
				t.Errorf("key %q sent %v, want %v", tt.key, got, tt.want)
			}
		default:
			t.Errorf("key %q sent no control request", tt.key)
		}
	}
}

func TestMonitorQuitStopsRun(t *testing.T) {
	controls := make(chan ControlRequest, 1)
	m := NewMonitor("run-1234", controls)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
	select {
	case got := <-controls:
		if got != RequestStop {
			t.Errorf("expected stop request on quit, got %v", got)
		}
	default:
		t.Error("expected stop request sent before quitting")
	}
}
