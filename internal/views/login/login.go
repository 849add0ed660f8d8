package login

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/rxflow-go/internal/messages"
	"github.com/robertguss/rxflow-go/internal/theme"
)

const (
	fieldUsername = iota
	fieldPassword
	fieldCount
)

// Model represents the login view
type Model struct {
	width   int
	height  int
	inputs  []textinput.Model
	focus   int
	pending bool
	err     string
	notice  string
	styles  theme.Styles
}

// New creates a new login view
func New() Model {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.Prompt = "User     "

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.Prompt = "Password "

	m := Model{
		inputs: []textinput.Model{username, password},
		styles: theme.NewStyles(),
	}
	m.inputs[fieldUsername].Focus()
	return m
}

// Init initializes the login view
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// SetSize sets the view dimensions
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetError shows a failed login and re-enables the form
func (m *Model) SetError(err error) {
	m.pending = false
	m.err = ""
	if err != nil {
		m.err = err.Error()
	}
}

// SetNotice shows an informational line, e.g. why the user was logged out
func (m *Model) SetNotice(notice string) {
	m.notice = notice
}

// Reset clears the form for a fresh login
func (m *Model) Reset() {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.pending = false
	m.err = ""
	m.setFocus(fieldUsername)
}

// Pending reports whether a login request is in flight
func (m Model) Pending() bool {
	return m.pending
}

// Update handles messages for the login view
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.pending {
			return m, nil
		}
		switch msg.String() {
		case "tab", "down":
			m.setFocus((m.focus + 1) % fieldCount)
			return m, nil
		case "shift+tab", "up":
			m.setFocus((m.focus + fieldCount - 1) % fieldCount)
			return m, nil
		case "enter":
			if m.focus == fieldUsername {
				m.setFocus(fieldPassword)
				return m, nil
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	username := strings.TrimSpace(m.inputs[fieldUsername].Value())
	password := m.inputs[fieldPassword].Value()

	if username == "" || password == "" {
		m.err = "Username and password are required"
		return m, nil
	}

	m.pending = true
	m.err = ""
	return m, func() tea.Msg {
		return messages.LoginRequestMsg{Username: username, Password: password}
	}
}

func (m *Model) setFocus(i int) {
	m.inputs[m.focus].Blur()
	m.focus = i
	m.inputs[m.focus].Focus()
}

// View renders the login view
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Sign in to the pharmacy backend"))
	b.WriteString("\n\n")
	for _, input := range m.inputs {
		b.WriteString(input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.pending:
		b.WriteString(m.styles.Info.Render("Signing in..."))
	case m.err != "":
		b.WriteString(m.styles.Error.Render(m.err))
	case m.notice != "":
		b.WriteString(m.styles.Warning.Render(m.notice))
	default:
		b.WriteString(m.styles.Muted.Render("Tab to switch fields, Enter to sign in"))
	}

	box := m.styles.FocusedBox.Width(48).Render(b.String())

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(box)
}
