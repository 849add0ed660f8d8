package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/robertguss/rxflow-go/internal/debounce"
	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/messages"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// npiLength is the number of digits in a National Provider Identifier
const npiLength = 10

// handleGlobalKeys handles keys that work in every view
// Returns (model, cmd, handled)
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return m, tea.Quit, true
	}

	if m.palette.IsActive() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd, true
	}

	switch msg.String() {
	case "ctrl+p":
		if m.activeView == domain.ViewWizard && m.Session() != nil {
			m.palette.Open()
			return m, nil, true
		}

	case "ctrl+l":
		if m.activeView == domain.ViewWizard {
			return m, send(messages.LogoutMsg{}), true
		}
	}
	return m, nil, false
}

// handleWindowSize propagates a resize to every component
func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true

	m.header.SetWidth(msg.Width)
	m.statusbar.SetWidth(msg.Width)

	// header(2) + statusbar(2)
	contentHeight := msg.Height - 4
	m.login.SetSize(msg.Width, contentHeight)
	m.wizard.SetSize(msg.Width, contentHeight)
	m.palette.SetSize(msg.Width, contentHeight)
}

// timeout returns a context bounded by the configured request timeout
func (m Model) timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.config.RequestTimeout)
}

// ========== Auth ==========

// handleAuthMsg handles login, logout and expiry
func (m Model) handleAuthMsg(msg tea.Msg) (Model, tea.Cmd, bool) {
	switch msg := msg.(type) {
	case messages.LoginRequestMsg:
		return m, m.loginCmd(msg.Username, msg.Password), true

	case messages.LoginResultMsg:
		if msg.Error != nil {
			m.login.SetError(msg.Error)
			return m, nil, true
		}
		m.login.Reset()
		m.login.SetNotice("")
		if msg.User != nil {
			m.header.SetUser(msg.User.Username, msg.User.Role)
		}
		m.setView(domain.ViewWizard)
		return m, send(messages.NewDraftMsg{}), true

	case messages.LogoutMsg:
		m.deps.Auth.Logout()
		m.signedOut("Signed out")
		return m, nil, true

	case messages.SessionExpiredMsg:
		m.signedOut("Session expired, please sign in again")
		return m, nil, true
	}
	return m, nil, false
}

func (m Model) loginCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.timeout()
		defer cancel()

		if err := m.deps.Auth.Login(ctx, username, password); err != nil {
			return messages.LoginResultMsg{Error: err}
		}
		return messages.LoginResultMsg{User: m.deps.Auth.User()}
	}
}

// signedOut drops the draft and returns to the login view
func (m *Model) signedOut(notice string) {
	if session := m.endSession(); session != nil && session.IsDirty() {
		m.logger.Warn("Signed out with unsaved changes")
	}
	m.deps.Drafts.Clear()

	m.header.SetUser("", "")
	m.statusbar.SetState(nil)
	m.statusbar.ClearMessage()
	m.palette.Close()
	m.login.Reset()
	m.login.SetNotice(notice)
	m.setView(domain.ViewLogin)
}

func (m *Model) setView(view domain.View) {
	if view.RequiresAuth() && !m.deps.Auth.IsAuthenticated() {
		view = domain.ViewLogin
	}
	m.activeView = view
	m.header.SetActiveView(view)
}

// ========== Session ==========

// startSession creates the workflow session for a freshly loaded draft and
// wires its subscribers
func (m *Model) startSession() *workflow.Session {
	m.endSession()

	cfg := m.config
	opts := []workflow.Option{
		workflow.WithClock(m.deps.Clock),
		workflow.WithInterval(cfg.AutoSaveInterval),
		workflow.WithAutoSave(cfg.AutoSaveEnabled),
		workflow.WithSubmitter(m.deps.Drafts),
		workflow.WithStrict(cfg.Strict),
		workflow.WithLogger(m.logger.WithField("module", "workflow")),
	}
	if m.deps.Recorder != nil {
		opts = append(opts, workflow.WithReporter(m.deps.Recorder))
	}
	session := workflow.NewSession(m.deps.Drafts, m.deps.Drafts, opts...)

	rt := m.rt
	search := debounce.New("", cfg.DebounceDelay, m.deps.Clock, func(query string) {
		rt.send(messages.PatientSearchMsg{Query: query})
	})
	session.Bind(search)

	unsubscribe := []func(){
		session.Subscribe(func(ev workflow.Event) {
			rt.send(messages.SessionEventMsg{Event: ev})
		}),
	}
	if m.deps.Recorder != nil {
		unsubscribe = append(unsubscribe, session.Subscribe(m.deps.Recorder.Record))
	}
	if m.deps.Bridge != nil {
		m.deps.Bridge.Attach(session)
	}

	rt.mu.Lock()
	rt.session = session
	rt.search = search
	rt.unsubscribe = unsubscribe
	rt.mu.Unlock()

	m.logger.WithField("session", session.ID()).Info("Authoring session started")
	return session
}

// endSession closes the active session, returning it (or nil)
func (m *Model) endSession() *workflow.Session {
	rt := m.rt
	rt.mu.Lock()
	session := rt.session
	unsubscribe := rt.unsubscribe
	rt.session = nil
	rt.search = nil
	rt.unsubscribe = nil
	rt.mu.Unlock()

	if session == nil {
		return nil
	}
	for _, fn := range unsubscribe {
		fn()
	}
	if m.deps.Bridge != nil && m.deps.Bridge.Session() == session {
		m.deps.Bridge.Detach()
	}
	session.Close()
	return session
}

// sync refreshes the wizard and status bar from the session and draft
func (m *Model) sync() {
	session, _ := m.rt.current()
	if session == nil {
		m.statusbar.SetState(nil)
		return
	}
	m.wizard.Sync(session, m.deps.Drafts.CurrentDraft())
	state := session.State()
	m.statusbar.SetState(&state)
}

// handleSessionMsg handles draft lifecycle, navigation, save and submit
func (m Model) handleSessionMsg(msg tea.Msg) (Model, tea.Cmd, bool) {
	switch msg := msg.(type) {
	case messages.NewDraftMsg:
		return m, m.newDraftCmd(), true

	case messages.DraftReadyMsg:
		if msg.Error != nil {
			m.statusbar.SetMessage(fmt.Sprintf("Could not start a prescription: %v", msg.Error))
			return m, nil, true
		}
		m.startSession()
		m.sync()
		m.statusbar.ClearMessage()
		return m, m.loadMedicationsCmd(), true

	case messages.SessionEventMsg:
		return m, m.handleSessionEvent(msg.Event), true

	case messages.AutoSaveToggleMsg:
		session := m.Session()
		if session == nil {
			return m, nil, true
		}
		enabled := !session.AutoSaveEnabled()
		session.SetAutoSaveEnabled(enabled)
		if enabled {
			m.statusbar.SetMessage("Autosave on")
		} else {
			m.statusbar.SetMessage("Autosave off")
		}
		m.sync()
		return m, nil, true

	case messages.StepNextMsg:
		session := m.Session()
		if session == nil {
			return m, nil, true
		}
		if _, ok := session.NextStep(); !ok {
			m.statusbar.SetMessage(m.blockedMessage(session))
		}
		m.sync()
		return m, nil, true

	case messages.StepPreviousMsg:
		if session := m.Session(); session != nil {
			session.PreviousStep()
			m.sync()
		}
		return m, nil, true

	case messages.StepGoToMsg:
		session := m.Session()
		if session == nil {
			return m, nil, true
		}
		if !session.GoToStep(msg.Key) {
			m.statusbar.SetMessage(m.blockedMessage(session))
		}
		m.sync()
		return m, nil, true

	case messages.SaveRequestMsg:
		if session := m.Session(); session != nil {
			return m, m.saveCmd(session), true
		}
		return m, nil, true

	case messages.SaveResultMsg:
		switch {
		case errors.Is(msg.Error, workflow.ErrSaveInProgress):
			m.statusbar.SetMessage("Save already in progress")
		case msg.Error != nil:
			m.statusbar.SetSaveFailed(true)
			m.statusbar.SetMessage(fmt.Sprintf("Save failed: %v", msg.Error))
		default:
			m.statusbar.SetMessage("Saved")
		}
		m.sync()
		return m, nil, true

	case messages.SubmitRequestMsg:
		if session := m.Session(); session != nil {
			return m, m.submitCmd(session), true
		}
		return m, nil, true

	case messages.SubmitResultMsg:
		if msg.Error != nil {
			m.wizard.SetError(msg.Error)
			m.statusbar.SetMessage("Submit failed")
			return m, nil, true
		}
		m.endSession()
		m.deps.Drafts.Clear()
		m.statusbar.SetMessage(fmt.Sprintf("Prescription %d submitted", msg.PrescriptionID))
		return m, tea.Batch(send(messages.NewDraftMsg{}), m.notifyCmd(func(n Notifier) error {
			return n.NotifySubmitted(msg.PrescriptionID)
		})), true

	case messages.ProfileChangedMsg:
		m.applyProfile(msg)
		return m, nil, true
	}
	return m, nil, false
}

// handleSessionEvent reflects a session event in the UI
func (m *Model) handleSessionEvent(ev workflow.Event) tea.Cmd {
	session := m.Session()
	if session == nil || ev.SessionID != session.ID() {
		return nil
	}

	var cmd tea.Cmd
	switch ev.Type {
	case workflow.EventSaved:
		m.statusbar.SetSaveFailed(false)
	case workflow.EventSaveFailed:
		m.statusbar.SetSaveFailed(true)
		if ev.Trigger == workflow.TriggerAuto {
			m.statusbar.SetMessage("Autosave failed: " + ev.Error)
			reason := ev.Error
			cmd = m.notifyCmd(func(n Notifier) error { return n.NotifySaveFailed(reason) })
		}
	}
	m.sync()
	return cmd
}

// notifyCmd runs a desktop notification off the update loop
func (m Model) notifyCmd(fn func(Notifier) error) tea.Cmd {
	notifier := m.deps.Notifier
	if notifier == nil {
		return nil
	}
	logger := m.logger
	return func() tea.Msg {
		if err := fn(notifier); err != nil {
			logger.WithError(err).Debug("Desktop notification failed")
		}
		return nil
	}
}

// blockedMessage names the first incomplete required step
func (m Model) blockedMessage(session *workflow.Session) string {
	for _, step := range session.Steps() {
		if step.Required && !session.IsStepCompleted(step.Key) {
			return "Complete " + step.Label + " first"
		}
	}
	return "That step is not available yet"
}

func (m Model) newDraftCmd() tea.Cmd {
	drafts := m.deps.Drafts
	return func() tea.Msg {
		ctx, cancel := m.timeout()
		defer cancel()

		draft, err := drafts.NewDraft(ctx)
		return messages.DraftReadyMsg{Draft: draft, Error: err}
	}
}

func (m Model) loadMedicationsCmd() tea.Cmd {
	drafts := m.deps.Drafts
	return func() tea.Msg {
		ctx, cancel := m.timeout()
		defer cancel()

		meds, err := drafts.Medications(ctx)
		return messages.MedicationsLoadedMsg{Medications: meds, Error: err}
	}
}

func (m Model) saveCmd(session *workflow.Session) tea.Cmd {
	return func() tea.Msg {
		return messages.SaveResultMsg{Error: session.Save(context.Background())}
	}
}

func (m Model) submitCmd(session *workflow.Session) tea.Cmd {
	drafts := m.deps.Drafts
	return func() tea.Msg {
		ctx, cancel := m.timeout()
		defer cancel()

		var id int64
		if draft := drafts.CurrentDraft(); draft != nil {
			id = draft.ID
		}
		return messages.SubmitResultMsg{PrescriptionID: id, Error: session.Submit(ctx)}
	}
}

// applyProfile pushes a reloaded profile into the config and the live session
func (m *Model) applyProfile(msg messages.ProfileChangedMsg) {
	if msg.Error != nil {
		m.statusbar.SetMessage(fmt.Sprintf("Profile reload failed: %v", msg.Error))
		return
	}
	if msg.Profile == nil {
		return
	}

	msg.Profile.ApplyToConfig(m.config)
	m.header.SetProfile(msg.Profile.Name)
	if session := m.Session(); session != nil {
		session.SetAutoSaveEnabled(m.config.AutoSaveEnabled)
		session.SetAutoSaveInterval(m.config.AutoSaveInterval)
	}
	m.statusbar.SetMessage("Profile " + msg.Profile.Name + " reloaded")
	m.sync()
}

// ========== Draft edits ==========

// handleEditMsg applies wizard edits to the draft and marks the session dirty
func (m Model) handleEditMsg(msg tea.Msg) (Model, tea.Cmd, bool) {
	switch msg := msg.(type) {
	case messages.PatientQueryMsg:
		if _, search := m.rt.current(); search != nil {
			search.Set(msg.Query)
		}
		return m, nil, true

	case messages.PatientSearchMsg:
		return m, m.searchPatientsCmd(msg.Query), true

	case messages.SelectPatientMsg:
		patient := msg.Patient
		m.edited(m.deps.Drafts.SetPatient(&patient))
		return m, nil, true

	case messages.PrescriberLookupMsg:
		session := m.Session()
		if session == nil {
			return m, nil, true
		}
		return m, m.lookupPrescriberCmd(session.ID(), msg.Query), true

	case messages.PrescriberResultMsg:
		if session := m.Session(); session == nil || msg.SessionID != session.ID() {
			m.logger.WithField("session", msg.SessionID).Debug("Dropping prescriber lookup for an ended session")
			return m, nil, true
		}
		if msg.Error == nil && msg.Prescriber != nil {
			m.edited(m.deps.Drafts.SetPrescriber(msg.Prescriber))
		}
		var cmd tea.Cmd
		m.wizard, cmd = m.wizard.Update(msg)
		return m, cmd, true

	case messages.AddMedicationMsg:
		m.edited(m.deps.Drafts.AddMedication(msg.Item))
		return m, nil, true

	case messages.RemoveMedicationMsg:
		m.edited(m.deps.Drafts.RemoveMedication(msg.Index))
		return m, nil, true

	case messages.NotesChangedMsg:
		m.edited(m.deps.Drafts.SetNotes(msg.Notes))
		return m, nil, true
	}
	return m, nil, false
}

// edited marks the session dirty after a successful draft edit
func (m *Model) edited(err error) {
	if err != nil {
		m.wizard.SetError(err)
		return
	}
	if session := m.Session(); session != nil {
		session.MarkDirty()
	}
	m.sync()
}

func (m Model) searchPatientsCmd(query string) tea.Cmd {
	drafts := m.deps.Drafts
	return func() tea.Msg {
		ctx, cancel := m.timeout()
		defer cancel()

		patients, err := drafts.SearchPatients(ctx, query)
		return messages.PatientResultsMsg{Query: query, Patients: patients, Error: err}
	}
}

// lookupPrescriberCmd treats a 10-digit query as an NPI and any other number as an ID
func (m Model) lookupPrescriberCmd(sessionID, query string) tea.Cmd {
	drafts := m.deps.Drafts
	query = strings.TrimSpace(query)
	return func() tea.Msg {
		ctx, cancel := m.timeout()
		defer cancel()

		id, err := strconv.ParseInt(query, 10, 64)
		if err != nil || id <= 0 {
			return messages.PrescriberResultMsg{SessionID: sessionID, Error: fmt.Errorf("%q is not a prescriber ID or NPI", query)}
		}

		var p *domain.Prescriber
		if len(query) == npiLength {
			p, err = drafts.PrescriberByNPI(ctx, query)
		} else {
			p, err = drafts.Prescriber(ctx, id)
		}
		if err != nil {
			return messages.PrescriberResultMsg{SessionID: sessionID, Error: fmt.Errorf("prescriber lookup failed: %w", err)}
		}
		return messages.PrescriberResultMsg{SessionID: sessionID, Prescriber: p}
	}
}
