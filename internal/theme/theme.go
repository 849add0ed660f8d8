package theme

import (
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Theme defines the color palette for the application
type Theme struct {
	Name string `yaml:"name"`

	Background lipgloss.Color `yaml:"background"`
	Foreground lipgloss.Color `yaml:"foreground"`
	Subtle     lipgloss.Color `yaml:"subtle"`
	Highlight  lipgloss.Color `yaml:"highlight"`

	Success lipgloss.Color `yaml:"success"`
	Warning lipgloss.Color `yaml:"warning"`
	Error   lipgloss.Color `yaml:"error"`
	Info    lipgloss.Color `yaml:"info"`

	Primary   lipgloss.Color `yaml:"primary"`
	Secondary lipgloss.Color `yaml:"secondary"`
	Accent    lipgloss.Color `yaml:"accent"`

	Border    lipgloss.Color `yaml:"border"`
	Selection lipgloss.Color `yaml:"selection"`
	Bar       lipgloss.Color `yaml:"bar"`
}

// Built-in palettes, keyed by config name
var palettes = map[string]Theme{
	"catppuccin": {
		Name:       "Catppuccin Mocha",
		Background: "#1e1e2e", Foreground: "#cdd6f4", Subtle: "#6c7086", Highlight: "#f5e0dc",
		Success: "#a6e3a1", Warning: "#f9e2af", Error: "#f38ba8", Info: "#89b4fa",
		Primary: "#cba6f7", Secondary: "#f5c2e7", Accent: "#94e2d5",
		Border: "#313244", Selection: "#45475a", Bar: "#181825",
	},
	"dracula": {
		Name:       "Dracula",
		Background: "#282a36", Foreground: "#f8f8f2", Subtle: "#6272a4", Highlight: "#f1fa8c",
		Success: "#50fa7b", Warning: "#ffb86c", Error: "#ff5555", Info: "#8be9fd",
		Primary: "#bd93f9", Secondary: "#ff79c6", Accent: "#8be9fd",
		Border: "#44475a", Selection: "#44475a", Bar: "#21222c",
	},
	"nord": {
		Name:       "Nord",
		Background: "#2e3440", Foreground: "#eceff4", Subtle: "#4c566a", Highlight: "#ebcb8b",
		Success: "#a3be8c", Warning: "#ebcb8b", Error: "#bf616a", Info: "#81a1c1",
		Primary: "#88c0d0", Secondary: "#b48ead", Accent: "#8fbcbb",
		Border: "#3b4252", Selection: "#434c5e", Bar: "#242933",
	},
}

// DefaultName is the palette used for unknown names
const DefaultName = "catppuccin"

// Current is the active theme
var Current = palettes[DefaultName]

// AvailableThemes returns the built-in theme names
func AvailableThemes() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetTheme sets the current theme by name, falling back to the default
func SetTheme(name string) {
	t, ok := palettes[name]
	if !ok {
		t = palettes[DefaultName]
	}
	Current = t
}

// LoadThemeFromYAML loads a custom palette. Colors missing from the file
// keep the values of the current theme.
func LoadThemeFromYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	custom := Current
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("failed to parse theme %s: %w", path, err)
	}
	if custom.Name == "" {
		custom.Name = "Custom"
	}

	Current = custom
	return nil
}

// Styles contains pre-built lipgloss styles using the current theme
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Muted     lipgloss.Style
	Bold      lipgloss.Style
	Highlight lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	Selected   lipgloss.Style
	Unselected lipgloss.Style
	Shortcut   lipgloss.Style

	BorderedBox lipgloss.Style
	FocusedBox  lipgloss.Style

	// Step badges
	BadgeComplete lipgloss.Style
	BadgeCurrent  lipgloss.Style
	BadgeOpen     lipgloss.Style
	BadgeLocked   lipgloss.Style
}

// NewStyles creates styles based on the current theme
func NewStyles() Styles {
	t := Current

	badge := lipgloss.NewStyle().Foreground(t.Background).Padding(0, 1)

	return Styles{
		Title:     lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Subtitle:  lipgloss.NewStyle().Foreground(t.Secondary),
		Muted:     lipgloss.NewStyle().Foreground(t.Subtle),
		Bold:      lipgloss.NewStyle().Bold(true),
		Highlight: lipgloss.NewStyle().Foreground(t.Highlight).Bold(true),

		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Info:    lipgloss.NewStyle().Foreground(t.Info),

		Selected: lipgloss.NewStyle().
			Background(t.Selection).
			Foreground(t.Foreground).
			Bold(true),
		Unselected: lipgloss.NewStyle().Foreground(t.Foreground),
		Shortcut:   lipgloss.NewStyle().Foreground(t.Accent).Bold(true),

		BorderedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(1, 2),
		FocusedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(1, 2),

		BadgeComplete: badge.Background(t.Success).Bold(true),
		BadgeCurrent:  badge.Background(t.Primary).Bold(true),
		BadgeOpen:     badge.Background(t.Info),
		BadgeLocked:   badge.Background(t.Subtle),
	}
}
