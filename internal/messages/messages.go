package messages

import (
	"github.com/robertguss/rxflow-go/internal/auth"
	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/profile"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// Window size message
type WindowSizeMsg struct {
	Width  int
	Height int
}

// ========== Auth Messages ==========

// LoginRequestMsg is sent when the login form is submitted
type LoginRequestMsg struct {
	Username string
	Password string
}

// LoginResultMsg carries the outcome of a login attempt
type LoginResultMsg struct {
	User  *auth.User
	Error error
}

// LogoutMsg requests ending the current login
type LogoutMsg struct{}

// SessionExpiredMsg is sent when the backend rejects the token
type SessionExpiredMsg struct{}

// ========== Draft Messages ==========

// NewDraftMsg requests creating a fresh prescription draft
type NewDraftMsg struct{}

// DraftReadyMsg is sent once a draft exists on the backend
type DraftReadyMsg struct {
	Draft *domain.Prescription
	Error error
}

// SessionEventMsg wraps a workflow session event for the UI
type SessionEventMsg struct {
	Event workflow.Event
}

// ========== Wizard Requests ==========

// PatientQueryMsg is sent on every keystroke in the patient search box
type PatientQueryMsg struct {
	Query string
}

// PatientSearchMsg is the settled search query after the debounce delay
type PatientSearchMsg struct {
	Query string
}

// PatientResultsMsg carries patient search results
type PatientResultsMsg struct {
	Query    string
	Patients []domain.Patient
	Error    error
}

// SelectPatientMsg requests attaching a patient to the draft
type SelectPatientMsg struct {
	Patient domain.Patient
}

// PrescriberLookupMsg requests a prescriber by ID or NPI
type PrescriberLookupMsg struct {
	Query string
}

// PrescriberResultMsg carries a prescriber lookup result for the session
// that asked for it
type PrescriberResultMsg struct {
	SessionID  string
	Prescriber *domain.Prescriber
	Error      error
}

// AddMedicationMsg requests appending a medication line
type AddMedicationMsg struct {
	Item domain.PrescriptionItem
}

// RemoveMedicationMsg requests removing a medication line
type RemoveMedicationMsg struct {
	Index int
}

// MedicationsLoadedMsg carries the medication catalogue
type MedicationsLoadedMsg struct {
	Medications []domain.Medication
	Error       error
}

// NotesChangedMsg is sent when the review notes are edited
type NotesChangedMsg struct {
	Notes string
}

// ========== Session Commands ==========

// StepNextMsg requests moving to the next step
type StepNextMsg struct{}

// StepPreviousMsg requests moving to the previous step
type StepPreviousMsg struct{}

// StepGoToMsg requests jumping to a step
type StepGoToMsg struct {
	Key workflow.StepKey
}

// SaveRequestMsg requests a manual save
type SaveRequestMsg struct{}

// SaveResultMsg carries the outcome of a manual save
type SaveResultMsg struct {
	Error error
}

// SubmitRequestMsg requests submitting the prescription
type SubmitRequestMsg struct{}

// SubmitResultMsg carries the outcome of a submit
type SubmitResultMsg struct {
	PrescriptionID int64
	Error          error
}

// ========== Profile Messages ==========

// ProfileChangedMsg is sent after the active profile file changed on disk
// and was reloaded
type ProfileChangedMsg struct {
	Profile *profile.Profile
	Error   error
}

// AutoSaveToggleMsg flips autosave for the active session
type AutoSaveToggleMsg struct{}
