package workflow

import "errors"

var (
	// ErrNoDraft means the session is dirty but the store has no draft loaded.
	// It indicates a bug in whichever collaborator marked the session dirty.
	ErrNoDraft = errors.New("workflow: dirty session has no draft loaded")

	// ErrUnknownStep means the current step key is not in the step table
	ErrUnknownStep = errors.New("workflow: current step is not in the step table")

	// ErrSaveInProgress is returned by manual saves that overlap a running save
	ErrSaveInProgress = errors.New("workflow: a save is already in progress")

	// ErrIncomplete is returned by Submit when a required step is not complete
	ErrIncomplete = errors.New("workflow: required steps are incomplete")

	// ErrClosed is returned by operations on a session that has ended
	ErrClosed = errors.New("workflow: session is closed")

	// ErrNoSubmitter is returned by Submit when the session has no submitter
	ErrNoSubmitter = errors.New("workflow: no submitter configured")
)
