package palette

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/rxflow-go/internal/messages"
	"github.com/robertguss/rxflow-go/internal/theme"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// Command is an action offered by the palette
type Command struct {
	Name        string
	Description string
	Shortcut    string
	Category    string
	Action      func() tea.Msg
}

// SelectCommandMsg is sent when a command is chosen
type SelectCommandMsg struct {
	Command Command
}

// CloseMsg is sent when the palette is dismissed without a choice
type CloseMsg struct{}

// Model is the wizard command palette
type Model struct {
	width    int
	height   int
	input    string
	commands []Command
	filtered []Command
	cursor   int
	active   bool
	styles   theme.Styles
}

// New creates a palette offering a jump to each of steps plus the draft actions
func New(steps []workflow.Step) Model {
	m := Model{
		commands: Commands(steps),
		styles:   theme.NewStyles(),
	}
	m.filtered = m.commands
	return m
}

// Commands builds the palette entries for steps
func Commands(steps []workflow.Step) []Command {
	cmds := make([]Command, 0, len(steps)+4)
	for i, step := range steps {
		key := step.Key
		desc := "Jump to this step"
		if step.Required {
			desc = "Jump to this step (required)"
		}
		cmds = append(cmds, Command{
			Name:        "Go to " + step.Label,
			Description: desc,
			Shortcut:    "M-" + string(rune('1'+i)),
			Category:    "Steps",
			Action:      func() tea.Msg { return messages.StepGoToMsg{Key: key} },
		})
	}

	return append(cmds,
		Command{
			Name:        "Save Draft",
			Description: "Save the prescription now",
			Shortcut:    "C-s",
			Category:    "Draft",
			Action:      func() tea.Msg { return messages.SaveRequestMsg{} },
		},
		Command{
			Name:        "Submit Prescription",
			Description: "Send the completed prescription to the pharmacy",
			Shortcut:    "C-x",
			Category:    "Draft",
			Action:      func() tea.Msg { return messages.SubmitRequestMsg{} },
		},
		Command{
			Name:        "Toggle Autosave",
			Description: "Turn periodic saving on or off for this draft",
			Category:    "Draft",
			Action:      func() tea.Msg { return messages.AutoSaveToggleMsg{} },
		},
		Command{
			Name:        "Sign Out",
			Description: "End the login and discard unsaved changes",
			Shortcut:    "C-l",
			Category:    "Session",
			Action:      func() tea.Msg { return messages.LogoutMsg{} },
		},
	)
}

// Open shows the palette with an empty query
func (m *Model) Open() {
	m.active = true
	m.input = ""
	m.cursor = 0
	m.filtered = m.commands
}

// Close hides the palette
func (m *Model) Close() {
	m.active = false
	m.input = ""
	m.cursor = 0
}

// IsActive returns whether the palette is open
func (m Model) IsActive() bool {
	return m.active
}

// Query returns the current filter text
func (m Model) Query() string {
	return m.input
}

// Filtered returns the commands matching the query
func (m Model) Filtered() []Command {
	return m.filtered
}

// SetSize sets the palette dimensions
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles messages while the palette is open
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.active {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeyMsg(msg)
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+p":
		m.Close()
		return m, func() tea.Msg { return CloseMsg{} }

	case "enter":
		if m.cursor < len(m.filtered) {
			cmd := m.filtered[m.cursor]
			m.Close()
			return m, func() tea.Msg { return SelectCommandMsg{Command: cmd} }
		}

	case "up", "ctrl+k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "ctrl+j":
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
		}

	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
			m.filter()
		}

	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.input += string(msg.Runes)
			m.filter()
		}
	}
	return m, nil
}

func (m *Model) filter() {
	if m.input == "" {
		m.filtered = m.commands
		m.cursor = 0
		return
	}

	query := strings.ToLower(m.input)
	var filtered []Command
	for _, cmd := range m.commands {
		if fuzzyMatch(strings.ToLower(cmd.Name), query) ||
			fuzzyMatch(strings.ToLower(cmd.Description), query) ||
			strings.Contains(strings.ToLower(cmd.Category), query) {
			filtered = append(filtered, cmd)
		}
	}

	m.filtered = filtered
	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
}

// fuzzyMatch reports whether the runes of query appear in target in order
func fuzzyMatch(target, query string) bool {
	rest := target
	for _, q := range query {
		i := strings.IndexRune(rest, q)
		if i < 0 {
			return false
		}
		rest = rest[i+len(string(q)):]
	}
	return true
}

// View renders the palette centred in its area
func (m Model) View() string {
	if !m.active {
		return ""
	}

	t := theme.Current
	width := max(min(60, m.width-4), 20)
	rows := max(min(8, m.height-10), 1)

	prompt := lipgloss.NewStyle().Foreground(t.Primary).Render("> ")
	caret := lipgloss.NewStyle().Foreground(t.Accent).Render("_")
	input := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(0, 1).
		Width(width - 2).
		Render(prompt + m.input + caret)

	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	var lines []string
	for i := start; i < len(m.filtered) && i < start+rows; i++ {
		lines = append(lines, m.renderCommand(i, m.filtered[i], width-4))
	}
	if len(lines) == 0 {
		lines = append(lines, m.styles.Muted.Render("No matching commands"))
	}

	results := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Width(width - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	box := lipgloss.NewStyle().
		Padding(1).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(t.Primary).
		Render(lipgloss.JoinVertical(lipgloss.Left, input, results))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderCommand(index int, cmd Command, width int) string {
	t := theme.Current
	selected := index == m.cursor

	name := lipgloss.NewStyle().Bold(true).Foreground(t.Foreground)
	desc := lipgloss.NewStyle().Foreground(t.Subtle)
	row := lipgloss.NewStyle().Width(width).Padding(0, 1)
	if selected {
		name = name.Foreground(t.Primary).Background(t.Selection)
		desc = desc.Background(t.Selection)
		row = row.Background(t.Selection)
	}

	line := name.Render(cmd.Name)
	if cmd.Shortcut != "" {
		line += lipgloss.NewStyle().Foreground(t.Accent).Render(" [" + cmd.Shortcut + "]")
	}
	line += lipgloss.NewStyle().Foreground(t.Subtle).Render(" " + cmd.Category)

	return row.Render(line + "\n" + desc.Render("  "+cmd.Description))
}
