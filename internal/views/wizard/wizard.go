package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/messages"
	"github.com/robertguss/rxflow-go/internal/theme"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// Workflow is the read side of a workflow session the wizard renders
type Workflow interface {
	Steps() []workflow.Step
	CurrentStep() workflow.StepKey
	IsStepCompleted(key workflow.StepKey) bool
	CanEnter(key workflow.StepKey) bool
	Progress() workflow.Progress
}

// Medication entry focus
const (
	medFocusCatalogue = iota
	medFocusQuantity
	medFocusSig
	medFocusRefills
)

const maxRefills = 11

// Model represents the prescription wizard view
type Model struct {
	width  int
	height int
	styles theme.Styles

	steps     []workflow.Step
	current   workflow.StepKey
	completed map[workflow.StepKey]bool
	enterable map[workflow.StepKey]bool
	progress  workflow.Progress
	draft     *domain.Prescription
	err       string

	// Patient step
	search        textinput.Model
	patients      []domain.Patient
	patientCursor int

	// Prescriber step
	prescriber textinput.Model

	// Medications step
	catalogue []domain.Medication
	medCursor int
	medFocus  int
	medInputs []textinput.Model

	// Review step
	notes   textinput.Model
	summary viewport.Model
}

// New creates a new wizard view
func New() Model {
	search := textinput.New()
	search.Placeholder = "name, phone or date of birth"
	search.Prompt = "Search  "
	search.CharLimit = 64

	prescriber := textinput.New()
	prescriber.Placeholder = "prescriber ID or 10-digit NPI"
	prescriber.Prompt = "Lookup  "
	prescriber.CharLimit = 16

	qty := textinput.New()
	qty.Prompt = "Qty     "
	qty.Placeholder = "30"
	qty.CharLimit = 8

	sig := textinput.New()
	sig.Prompt = "Sig     "
	sig.Placeholder = "1 tab po qd"
	sig.CharLimit = 120

	refills := textinput.New()
	refills.Prompt = "Refills "
	refills.Placeholder = "0"
	refills.CharLimit = 2

	notes := textinput.New()
	notes.Prompt = "Notes   "
	notes.Placeholder = "optional pharmacist notes"
	notes.CharLimit = 500

	return Model{
		styles:     theme.NewStyles(),
		completed:  make(map[workflow.StepKey]bool),
		enterable:  make(map[workflow.StepKey]bool),
		search:     search,
		prescriber: prescriber,
		medInputs:  []textinput.Model{qty, sig, refills},
		notes:      notes,
		summary:    viewport.New(0, 0),
	}
}

// Init initializes the wizard view
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// SetSize sets the view dimensions
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.summary.Width = max(width-sidebarWidth-6, 20)
	m.summary.Height = max(height-10, 3)
}

// Sync refreshes the wizard from the session and the latest draft snapshot
func (m *Model) Sync(wf Workflow, draft *domain.Prescription) {
	m.steps = wf.Steps()
	m.progress = wf.Progress()
	for _, step := range m.steps {
		m.completed[step.Key] = wf.IsStepCompleted(step.Key)
		m.enterable[step.Key] = wf.CanEnter(step.Key)
	}
	m.draft = draft

	current := wf.CurrentStep()
	if current != m.current {
		m.current = current
		m.err = ""
		m.focusStep()
	}

	if m.medCursor >= len(m.catalogue) {
		m.medCursor = 0
	}
	m.summary.SetContent(m.renderSummary())
}

// SetError shows an error under the current step
func (m *Model) SetError(err error) {
	m.err = ""
	if err != nil {
		m.err = err.Error()
	}
}

// Error returns the error shown under the current step
func (m Model) Error() string {
	return m.err
}

// SetPatientResults replaces the patient search results
func (m *Model) SetPatientResults(patients []domain.Patient) {
	m.patients = patients
	m.patientCursor = 0
}

// SetMedications sets the medication catalogue
func (m *Model) SetMedications(catalogue []domain.Medication) {
	m.catalogue = catalogue
	m.medCursor = 0
}

// CurrentStep returns the step the wizard is showing
func (m Model) CurrentStep() workflow.StepKey {
	return m.current
}

func (m *Model) focusStep() {
	m.search.Blur()
	m.prescriber.Blur()
	m.notes.Blur()
	for i := range m.medInputs {
		m.medInputs[i].Blur()
	}
	m.medFocus = medFocusCatalogue

	switch m.current {
	case workflow.StepPatient:
		m.search.Focus()
	case workflow.StepPrescriber:
		m.prescriber.Focus()
	case workflow.StepReview:
		if m.draft != nil {
			m.notes.SetValue(m.draft.Notes)
		}
		m.notes.Focus()
	}
}

// Update handles messages for the wizard view
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case messages.PatientResultsMsg:
		if msg.Query != strings.TrimSpace(m.search.Value()) {
			return m, nil
		}
		m.SetError(msg.Error)
		if msg.Error == nil {
			m.SetPatientResults(msg.Patients)
		}
		return m, nil

	case messages.PrescriberResultMsg:
		m.SetError(msg.Error)
		if msg.Error == nil {
			m.prescriber.Reset()
		}
		return m, nil

	case messages.MedicationsLoadedMsg:
		m.SetError(msg.Error)
		if msg.Error == nil {
			m.SetMedications(msg.Medications)
		}
		return m, nil

	case tea.KeyMsg:
		if cmd, ok := m.globalKey(msg); ok {
			return m, cmd
		}
		switch m.current {
		case workflow.StepPatient:
			return m.updatePatient(msg)
		case workflow.StepPrescriber:
			return m.updatePrescriber(msg)
		case workflow.StepMedications:
			return m.updateMedications(msg)
		case workflow.StepReview:
			return m.updateReview(msg)
		}
	}

	return m, nil
}

func send(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m Model) globalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	switch key {
	case "tab":
		return send(messages.StepNextMsg{}), true
	case "shift+tab":
		return send(messages.StepPreviousMsg{}), true
	case "ctrl+s":
		return send(messages.SaveRequestMsg{}), true
	case "ctrl+x":
		if m.current == workflow.StepReview {
			return send(messages.SubmitRequestMsg{}), true
		}
		return nil, true
	}

	if n, ok := strings.CutPrefix(key, "alt+"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 && i <= len(m.steps) {
			return send(messages.StepGoToMsg{Key: m.steps[i-1].Key}), true
		}
	}
	return nil, false
}

func (m Model) updatePatient(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "up":
		if m.patientCursor > 0 {
			m.patientCursor--
		}
		return m, nil
	case "down":
		if m.patientCursor < len(m.patients)-1 {
			m.patientCursor++
		}
		return m, nil
	case "enter":
		if len(m.patients) == 0 {
			return m, nil
		}
		return m, send(messages.SelectPatientMsg{Patient: m.patients[m.patientCursor]})
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != before {
		query := strings.TrimSpace(m.search.Value())
		return m, tea.Batch(cmd, send(messages.PatientQueryMsg{Query: query}))
	}
	return m, cmd
}

func (m Model) updatePrescriber(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "enter" {
		query := strings.TrimSpace(m.prescriber.Value())
		if query == "" {
			m.err = "Enter a prescriber ID or NPI"
			return m, nil
		}
		m.err = ""
		return m, send(messages.PrescriberLookupMsg{Query: query})
	}

	var cmd tea.Cmd
	m.prescriber, cmd = m.prescriber.Update(msg)
	return m, cmd
}

func (m Model) updateMedications(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+d":
		if n := m.draft.MedicationCount(); n > 0 {
			return m, send(messages.RemoveMedicationMsg{Index: n - 1})
		}
		return m, nil
	case "esc":
		m.setMedFocus(medFocusCatalogue)
		return m, nil
	}

	if m.medFocus == medFocusCatalogue {
		switch msg.String() {
		case "up":
			if m.medCursor > 0 {
				m.medCursor--
			}
		case "down":
			if m.medCursor < len(m.catalogue)-1 {
				m.medCursor++
			}
		case "enter":
			if len(m.catalogue) > 0 {
				m.err = ""
				m.setMedFocus(medFocusQuantity)
			}
		}
		return m, nil
	}

	if msg.String() == "enter" {
		if m.medFocus < medFocusRefills {
			m.setMedFocus(m.medFocus + 1)
			return m, nil
		}
		item, err := m.medicationItem()
		if err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.err = ""
		for i := range m.medInputs {
			m.medInputs[i].Reset()
		}
		m.setMedFocus(medFocusCatalogue)
		return m, send(messages.AddMedicationMsg{Item: item})
	}

	i := m.medFocus - 1
	var cmd tea.Cmd
	m.medInputs[i], cmd = m.medInputs[i].Update(msg)
	return m, cmd
}

func (m *Model) setMedFocus(focus int) {
	if m.medFocus > medFocusCatalogue {
		m.medInputs[m.medFocus-1].Blur()
	}
	m.medFocus = focus
	if focus > medFocusCatalogue {
		m.medInputs[focus-1].Focus()
	}
}

// medicationItem builds a prescription line from the entry fields
func (m Model) medicationItem() (domain.PrescriptionItem, error) {
	if len(m.catalogue) == 0 {
		return domain.PrescriptionItem{}, errors.New("no medication selected")
	}
	med := m.catalogue[m.medCursor]

	qty, err := strconv.ParseFloat(strings.TrimSpace(m.medInputs[0].Value()), 64)
	if err != nil || qty <= 0 {
		return domain.PrescriptionItem{}, errors.New("quantity must be a positive number")
	}

	sig := strings.TrimSpace(m.medInputs[1].Value())
	if sig == "" {
		return domain.PrescriptionItem{}, errors.New("sig is required")
	}

	refills := 0
	if raw := strings.TrimSpace(m.medInputs[2].Value()); raw != "" {
		refills, err = strconv.Atoi(raw)
		if err != nil || refills < 0 || refills > maxRefills {
			return domain.PrescriptionItem{}, fmt.Errorf("refills must be between 0 and %d", maxRefills)
		}
	}

	return domain.PrescriptionItem{
		MedicationID: med.ID,
		Name:         med.Name,
		Quantity:     qty,
		Sig:          sig,
		Refills:      refills,
	}, nil
}

func (m Model) updateReview(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "pgup", "pgdown", "ctrl+u":
		var cmd tea.Cmd
		m.summary, cmd = m.summary.Update(msg)
		return m, cmd
	}

	before := m.notes.Value()
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	if m.notes.Value() != before {
		return m, tea.Batch(cmd, send(messages.NotesChangedMsg{Notes: m.notes.Value()}))
	}
	return m, cmd
}
