package app

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/robertguss/rxflow-go/internal/api"
	"github.com/robertguss/rxflow-go/internal/auth"
	"github.com/robertguss/rxflow-go/internal/components/header"
	"github.com/robertguss/rxflow-go/internal/components/palette"
	"github.com/robertguss/rxflow-go/internal/components/statusbar"
	"github.com/robertguss/rxflow-go/internal/config"
	"github.com/robertguss/rxflow-go/internal/debounce"
	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/messages"
	"github.com/robertguss/rxflow-go/internal/preflight"
	"github.com/robertguss/rxflow-go/internal/storage"
	"github.com/robertguss/rxflow-go/internal/theme"
	"github.com/robertguss/rxflow-go/internal/views/login"
	"github.com/robertguss/rxflow-go/internal/views/wizard"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// Authenticator is the login surface the app drives
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
	Logout()
	IsAuthenticated() bool
	User() *auth.User
	OnInvalidated(fn func())
}

// Drafts owns the prescription being authored and the lookups that fill it in
type Drafts interface {
	workflow.DraftSource
	workflow.Persister
	workflow.Submitter

	NewDraft(ctx context.Context) (*domain.Prescription, error)
	Clear()
	SetPatient(p *domain.Patient) error
	SetPrescriber(p *domain.Prescriber) error
	AddMedication(item domain.PrescriptionItem) error
	RemoveMedication(i int) error
	SetNotes(notes string) error

	SearchPatients(ctx context.Context, query string) ([]domain.Patient, error)
	Prescriber(ctx context.Context, id int64) (*domain.Prescriber, error)
	PrescriberByNPI(ctx context.Context, npi string) (*domain.Prescriber, error)
	Medications(ctx context.Context) ([]domain.Medication, error)
}

// Notifier raises desktop notifications
type Notifier interface {
	NotifySubmitted(id int64) error
	NotifySaveFailed(reason string) error
}

// Sender delivers messages into the running program
type Sender interface {
	Send(msg tea.Msg)
}

// Deps are the services the application is built from. Recorder, Bridge,
// Notifier and Backend are optional.
type Deps struct {
	Config   *config.Config
	Auth     Authenticator
	Drafts   Drafts
	Recorder *storage.Recorder
	Bridge   *api.Server
	Notifier Notifier
	Backend  preflight.Pinger
	Clock    clockwork.Clock
	Logger   *logrus.Entry
	Profile  string
}

// runtime holds the state shared by every copy of the model
type runtime struct {
	mu          sync.Mutex
	program     Sender
	session     *workflow.Session
	search      *debounce.Pipe[string]
	unsubscribe []func()

	// Messages waiting for the delivery goroutine, in send order
	pending []tea.Msg
	wake    chan struct{}
	start   sync.Once
}

func newRuntime() *runtime {
	return &runtime{wake: make(chan struct{}, 1)}
}

// send queues msg for the program without blocking the caller. Messages
// reach the program in the order they were sent.
func (r *runtime) send(msg tea.Msg) {
	r.mu.Lock()
	if r.program == nil {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, msg)
	r.mu.Unlock()

	r.start.Do(func() { go r.deliver() })
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// deliver drains the queue one message at a time
func (r *runtime) deliver() {
	for range r.wake {
		for {
			r.mu.Lock()
			if len(r.pending) == 0 {
				r.mu.Unlock()
				break
			}
			msg := r.pending[0]
			r.pending = r.pending[1:]
			p := r.program
			r.mu.Unlock()

			p.Send(msg)
		}
	}
}

func (r *runtime) current() (*workflow.Session, *debounce.Pipe[string]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.search
}

// Model is the main application model
type Model struct {
	// Dimensions
	width  int
	height int
	ready  bool

	// Navigation
	activeView domain.View

	deps   Deps
	config *config.Config
	logger *logrus.Entry
	rt     *runtime

	// Components
	header    header.Model
	statusbar statusbar.Model
	palette   palette.Model

	// Views
	login  login.Model
	wizard wizard.Model

	// Styles
	styles theme.Styles

	// Pre-flight check results
	preflightResults *preflight.Results
}

// New creates a new application model
func New(deps Deps) Model {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.WithField("module", "app")
	}

	m := Model{
		activeView: domain.ViewLogin,
		deps:       deps,
		config:     deps.Config,
		logger:     deps.Logger,
		rt:         newRuntime(),
		header:     header.New(),
		statusbar:  statusbar.New(),
		palette:    palette.New(workflow.DefaultSteps().Steps()),
		login:      login.New(),
		wizard:     wizard.New(),
		styles:     theme.NewStyles(),
	}
	m.header.SetProfile(deps.Profile)

	rt := m.rt
	deps.Auth.OnInvalidated(func() { rt.send(messages.SessionExpiredMsg{}) })

	if user := deps.Auth.User(); user != nil && deps.Auth.IsAuthenticated() {
		m.activeView = domain.ViewWizard
		m.header.SetUser(user.Username, user.Role)
	}
	m.header.SetActiveView(m.activeView)
	return m
}

// SetProgram sets the program that receives asynchronous session messages
func (m *Model) SetProgram(p Sender) {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	m.rt.program = p
}

// Session returns the active workflow session, or nil
func (m Model) Session() *workflow.Session {
	session, _ := m.rt.current()
	return session
}

// ActiveView returns the view being shown
func (m Model) ActiveView() domain.View {
	return m.activeView
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.login.Init(), m.runPreflightChecks}
	if m.activeView == domain.ViewWizard {
		cmds = append(cmds, send(messages.NewDraftMsg{}))
	}
	return tea.Batch(cmds...)
}

// runPreflightChecks runs pre-flight checks
func (m Model) runPreflightChecks() tea.Msg {
	results := preflight.RunAll(context.Background(), m.config, m.deps.Backend)
	return preflightResultsMsg{Results: results}
}

// preflightResultsMsg carries pre-flight check results
type preflightResultsMsg struct {
	Results *preflight.Results
}

func send(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m, cmd, handled := m.handleGlobalKeys(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
		return m, nil

	case palette.SelectCommandMsg:
		return m, msg.Command.Action

	case palette.CloseMsg:
		return m, nil

	case preflightResultsMsg:
		m.preflightResults = msg.Results
		for _, check := range msg.Results.FailedChecks() {
			if !preflight.IsWarning(check.Name) {
				m.statusbar.SetMessage("Pre-flight: " + check.Name + ": " + check.Error)
				break
			}
		}
		return m, nil
	}

	if m, cmd, handled := m.handleAuthMsg(msg); handled {
		return m, cmd
	}
	if m, cmd, handled := m.handleSessionMsg(msg); handled {
		return m, cmd
	}
	if m, cmd, handled := m.handleEditMsg(msg); handled {
		return m, cmd
	}

	// Route to active view
	var cmd tea.Cmd
	switch m.activeView {
	case domain.ViewLogin:
		m.login, cmd = m.login.Update(msg)
	case domain.ViewWizard:
		m.wizard, cmd = m.wizard.Update(msg)
	}
	return m, cmd
}

// Shutdown flushes unsaved changes and ends the active session
func (m Model) Shutdown(ctx context.Context) {
	session, _ := m.rt.current()
	if session != nil && session.IsDirty() {
		if err := session.Save(ctx); err != nil {
			m.logger.WithError(err).Warn("Final save failed")
		}
	}
	m.endSession()
}

// View renders the application
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing rxflow..."
	}

	var content string
	switch m.activeView {
	case domain.ViewLogin:
		content = m.login.View()
	case domain.ViewWizard:
		content = m.wizard.View()
		if m.palette.IsActive() {
			content = m.palette.View()
		}
	}

	content = lipgloss.NewStyle().
		Height(max(m.height-4, 0)).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		content,
		m.statusbar.View(),
	)
}
