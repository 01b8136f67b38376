// Package ui is the terminal front end of matrixvoice: a single toggle with
// a status line.
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alakbarr/Interview-Matrix/internal/seed"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
)

// boxWidth is the inner width of the rendered frame.
const boxWidth = 52

// maxShownPoints limits the key points listed on screen.
const maxShownPoints = 5

// ToggleFunc starts a session when none is running and stops it otherwise.
// It runs outside the bubbletea update loop and may block on seed loading.
// A seed with a non-empty topic replaces the one on screen.
type ToggleFunc func() (seed.Seed, error)

// StatusMsg carries a controller status into the program. Send it with
// [tea.Program.Send] from the controller's observer.
type StatusMsg voice.Status

// toggleDoneMsg reports the outcome of a [ToggleFunc] call.
type toggleDoneMsg struct {
	seed seed.Seed
	err  error
}

// Model is the bubbletea model of the status screen.
type Model struct {
	seed   seed.Seed
	toggle ToggleFunc

	status  voice.Status
	pending bool
	lastErr error

	width  int
	height int
}

// NewModel creates a model showing s. toggle is invoked on space or enter.
func NewModel(s seed.Seed, toggle ToggleFunc) Model {
	return Model{seed: s, toggle: toggle}
}

// Init implements [tea.Model].
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements [tea.Model].
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = voice.Status(msg)
		m.lastErr = nil
	case toggleDoneMsg:
		m.pending = false
		m.lastErr = msg.err
		if msg.err == nil && msg.seed.Topic != "" {
			m.seed = msg.seed
		}
	}
	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ", "enter":
		if m.pending || m.toggle == nil {
			return m, nil
		}
		m.pending = true
		toggle := m.toggle
		return m, func() tea.Msg {
			s, err := toggle()
			return toggleDoneMsg{seed: s, err: err}
		}
	}
	return m, nil
}

// View implements [tea.Model].
func (m Model) View() string {
	var b strings.Builder
	b.WriteString("┌─ Interview Matrix " + strings.Repeat("─", boxWidth-17) + "┐\n")
	m.line(&b, "Topic:  "+orDefault(m.seed.Topic, "(none)"))
	for i, p := range m.seed.KeyPoints {
		if i == maxShownPoints {
			m.line(&b, fmt.Sprintf("  … %d more", len(m.seed.KeyPoints)-i))
			break
		}
		m.line(&b, "  • "+p)
	}
	m.line(&b, "Status: "+statusIcon(m.status.Kind)+" "+m.statusText())
	if m.status.SessionID != "" && m.status.Kind != voice.StatusIdle && m.status.Kind != voice.StatusError {
		m.line(&b, "Session: "+m.status.SessionID)
	}
	if m.lastErr != nil {
		m.line(&b, "Toggle failed: "+m.lastErr.Error())
	}
	b.WriteString("├" + strings.Repeat("─", boxWidth+2) + "┤\n")
	m.line(&b, "space/enter: "+m.actionLabel()+"   q: quit")
	b.WriteString("└" + strings.Repeat("─", boxWidth+2) + "┘\n")
	return b.String()
}

func (m Model) line(b *strings.Builder, s string) {
	fmt.Fprintf(b, "│ %-*s │\n", boxWidth, truncate(s, boxWidth))
}

func (m Model) statusText() string {
	if m.pending && m.status.Kind == voice.StatusIdle {
		return "starting..."
	}
	switch m.status.Kind {
	case voice.StatusConnecting:
		return "Connecting..."
	case voice.StatusListening:
		return "Listening"
	case voice.StatusError:
		if m.status.Err != nil {
			return "Error: " + m.status.Err.Error()
		}
		return "Error"
	default:
		return "Idle"
	}
}

func (m Model) actionLabel() string {
	switch m.status.Kind {
	case voice.StatusConnecting, voice.StatusListening:
		return "stop"
	default:
		return "start"
	}
}

func statusIcon(k voice.StatusKind) string {
	switch k {
	case voice.StatusConnecting:
		return "…"
	case voice.StatusListening:
		return "●"
	case voice.StatusError:
		return "✗"
	default:
		return "○"
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
