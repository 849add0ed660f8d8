package workflow

import "time"

// EventType identifies what changed in a session
type EventType string

const (
	EventStepChanged  EventType = "step_changed"
	EventDirtyChanged EventType = "dirty_changed"
	EventSaved        EventType = "saved"
	EventSaveFailed   EventType = "save_failed"
	EventSubmitted    EventType = "submitted"
	EventClosed       EventType = "closed"
)

// Trigger records what started a save
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// Event is delivered to session subscribers
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId"`
	Time      time.Time     `json:"time"`
	State     State         `json:"state"`
	DraftID   int64         `json:"draftId,omitempty"`
	Trigger   Trigger       `json:"trigger,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}
