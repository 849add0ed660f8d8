package header

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/theme"
)

// Model represents the header component
type Model struct {
	width      int
	activeView domain.View
	user       string
	role       string
	profile    string
}

// New creates a new header model
func New() Model {
	return Model{}
}

// SetWidth sets the header width
func (m *Model) SetWidth(width int) {
	m.width = width
}

// SetActiveView sets the currently active view
func (m *Model) SetActiveView(view domain.View) {
	m.activeView = view
}

// SetUser sets the logged-in operator; empty clears it
func (m *Model) SetUser(username, role string) {
	m.user = username
	m.role = role
}

// SetProfile sets the active backend profile name
func (m *Model) SetProfile(name string) {
	m.profile = name
}

// View renders the header
func (m Model) View() string {
	t := theme.Current

	title := lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true).
		Render("rxflow")

	view := lipgloss.NewStyle().
		Foreground(t.Foreground).
		Render(m.activeView.String())

	left := title + "  " + view

	var parts []string
	if m.profile != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(t.Info).Render("@"+m.profile))
	}
	if m.user != "" {
		who := m.user
		if m.role != "" {
			who += " (" + strings.ToLower(m.role) + ")"
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(t.Accent).Render(who))
	}
	right := strings.Join(parts, "  ")

	content := left
	if gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4; gap > 0 {
		content = left + strings.Repeat(" ", gap) + right
	}

	header := lipgloss.NewStyle().
		Background(t.Bar).
		Foreground(t.Foreground).
		Width(m.width).
		Padding(0, 2).
		Render(content)

	border := lipgloss.NewStyle().
		Foreground(t.Border).
		Width(m.width).
		Render(strings.Repeat("─", m.width))

	return lipgloss.JoinVertical(lipgloss.Left, header, border)
}
