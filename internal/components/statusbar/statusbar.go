package statusbar

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/rxflow-go/internal/theme"
	"github.com/robertguss/rxflow-go/internal/util"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// Model represents the status bar component
type Model struct {
	width   int
	state   *workflow.State
	failed  bool
	message string
	now     func() time.Time
}

// New creates a new status bar model
func New() Model {
	return Model{now: time.Now}
}

// SetWidth sets the status bar width
func (m *Model) SetWidth(width int) {
	m.width = width
}

// SetState records the latest session state; nil means no session
func (m *Model) SetState(state *workflow.State) {
	m.state = state
	if state != nil && !state.IsDirty {
		m.failed = false
	}
}

// SetSaveFailed marks that the last save attempt failed
func (m *Model) SetSaveFailed(failed bool) {
	m.failed = failed
}

// SetMessage sets a temporary status message
func (m *Model) SetMessage(msg string) {
	m.message = msg
}

// ClearMessage clears the status message
func (m *Model) ClearMessage() {
	m.message = ""
}

// Message returns the current status message
func (m Model) Message() string {
	return m.message
}

// SaveStatus describes the autosave state in words
func (m Model) SaveStatus() string {
	if m.state == nil {
		return "No draft"
	}

	s := m.state
	switch {
	case s.Saving:
		return "Saving..."
	case s.IsDirty && m.failed:
		return "Save failed, retrying"
	case s.IsDirty && !s.AutoSaveEnabled:
		return "Unsaved changes (autosave off)"
	case s.IsDirty:
		return "Unsaved changes"
	case s.LastSavedAt != nil:
		return "Saved " + util.FormatRelative(m.now().Sub(*s.LastSavedAt))
	default:
		return "No changes"
	}
}

// View renders the status bar
func (m Model) View() string {
	t := theme.Current

	border := lipgloss.NewStyle().
		Foreground(t.Border).
		Width(m.width).
		Render(strings.Repeat("─", m.width))

	saveColor := t.Success
	if m.state != nil && m.state.IsDirty {
		saveColor = t.Warning
		if m.failed {
			saveColor = t.Error
		}
	}
	save := lipgloss.NewStyle().Foreground(saveColor).Render(m.SaveStatus())

	autosave := "Autosave: off"
	if m.state != nil && m.state.AutoSaveEnabled {
		autosave = "Autosave: on"
	}
	left := fmt.Sprintf("%s | %s", save, autosave)

	var right string
	if m.message != "" {
		right = lipgloss.NewStyle().Foreground(t.Warning).Render(m.message)
	} else {
		right = lipgloss.NewStyle().Foreground(t.Subtle).Render("Ctrl+S save | Ctrl+C quit")
	}

	content := left
	if gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4; gap > 0 {
		content = left + strings.Repeat(" ", gap) + right
	}

	bar := lipgloss.NewStyle().
		Background(t.Bar).
		Foreground(t.Subtle).
		Width(m.width).
		Padding(0, 2).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, border, bar)
}
