package notify

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Cue is a system sound played alongside a notification
type Cue int

const (
	CueSuccess Cue = iota
	CueError
)

// Notifier sends desktop notifications for events that happen while the
// terminal may be in the background
type Notifier struct {
	enabled bool
	sound   bool
	goos    string
	run     func(name string, args ...string) error
	start   func(name string, args ...string) error
}

// Option configures a Notifier
type Option func(*Notifier)

// WithSound also plays a system sound for each notification
func WithSound(enabled bool) Option {
	return func(n *Notifier) { n.sound = enabled }
}

// New creates a new notifier
func New(enabled bool, opts ...Option) *Notifier {
	n := &Notifier{
		enabled: enabled,
		goos:    runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
		start: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetEnabled enables or disables notifications
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// Notify sends a desktop notification. Unsupported platforms are a no-op.
func (n *Notifier) Notify(title, message string) error {
	if !n.enabled {
		return nil
	}

	switch n.goos {
	case "darwin":
		title = strings.ReplaceAll(title, `"`, `\"`)
		message = strings.ReplaceAll(message, `"`, `\"`)
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
		return n.run("osascript", "-e", script)
	case "linux":
		return n.run("notify-send", title, message)
	default:
		return nil
	}
}

// Play starts a system sound without waiting for it to finish
func (n *Notifier) Play(cue Cue) error {
	if !n.sound {
		return nil
	}

	switch n.goos {
	case "darwin":
		path := "/System/Library/Sounds/Glass.aiff"
		if cue == CueError {
			path = "/System/Library/Sounds/Basso.aiff"
		}
		return n.start("afplay", path)
	case "linux":
		path := "/usr/share/sounds/freedesktop/stereo/complete.oga"
		if cue == CueError {
			path = "/usr/share/sounds/freedesktop/stereo/dialog-error.oga"
		}
		return n.start("paplay", path)
	default:
		return nil
	}
}

// NotifySubmitted announces a submitted prescription
func (n *Notifier) NotifySubmitted(id int64) error {
	return errors.Join(
		n.Notify("Prescription Submitted", fmt.Sprintf("Prescription %d was sent to the pharmacy", id)),
		n.Play(CueSuccess),
	)
}

// NotifySaveFailed announces a failed background save
func (n *Notifier) NotifySaveFailed(reason string) error {
	return errors.Join(
		n.Notify("Autosave Failed", "Draft not saved: "+reason),
		n.Play(CueError),
	)
}
