// Package util provides display formatting shared by the TUI and the CLI.
package util

import (
	"fmt"
	"strings"
	"time"
)

// FormatDurationCompact formats a duration for tables.
// - Under 1 second: "500ms"
// - Under 1 minute: "45.5s"
// - Under 1 hour: "5m30s"
// - 1 hour or more: "1h23m"
func FormatDurationCompact(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatRelative formats the age of an event.
// - Under 1 second: "just now"
// - Under 1 minute: "12s ago"
// - Under 1 hour: "5m ago"
// - 1 hour or more: "2h ago"
func FormatRelative(age time.Duration) string {
	switch {
	case age < time.Second:
		return "just now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
}

// Truncate shortens s to width runes, marking the cut with "…"
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

// PadRight pads s with spaces to width runes
func PadRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
