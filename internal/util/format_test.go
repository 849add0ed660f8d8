package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDurationCompact(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "0ms"},
		{"120 milliseconds", 120 * time.Millisecond, "120ms"},
		{"1 second", time.Second, "1.0s"},
		{"45.5 seconds", 45500 * time.Millisecond, "45.5s"},
		{"5 minutes 30 seconds", 5*time.Minute + 30*time.Second, "5m30s"},
		{"1 hour 23 minutes", time.Hour + 23*time.Minute, "1h23m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDurationCompact(tt.duration))
		})
	}
}

func TestFormatRelative(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		expected string
	}{
		{"zero", 0, "just now"},
		{"negative clock skew", -time.Second, "just now"},
		{"12 seconds", 12 * time.Second, "12s ago"},
		{"59 seconds", 59 * time.Second, "59s ago"},
		{"5 minutes", 5*time.Minute + 10*time.Second, "5m ago"},
		{"2 hours", 2*time.Hour + 59*time.Minute, "2h ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRelative(tt.age))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in       string
		width    int
		expected string
	}{
		{"Amoxicillin", 20, "Amoxicillin"},
		{"Amoxicillin", 11, "Amoxicillin"},
		{"Amoxicillin", 5, "Amox…"},
		{"Amoxicillin", 1, "…"},
		{"Amoxicillin", 0, ""},
		{"Zoë Müller", 4, "Zoë…"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Truncate(tt.in, tt.width), "Truncate(%q, %d)", tt.in, tt.width)
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "Rx   ", PadRight("Rx", 5))
	assert.Equal(t, "Prescriber", PadRight("Prescriber", 4))
}
