package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/robertguss/rxflow-go/internal/domain"
)

// Default timing values
const (
	DefaultAutoSaveInterval = 30 * time.Second
	DefaultSaveTimeout      = 15 * time.Second
)

// DraftSource provides the draft being authored. Implementations return a
// snapshot that is safe to read from another goroutine, or nil when no
// prescription is loaded.
type DraftSource interface {
	CurrentDraft() *domain.Prescription
}

// Persister writes a draft to the backing store
type Persister interface {
	Persist(ctx context.Context, id int64, draft *domain.Prescription) error
}

// Submitter finalises a prescription once the review step is acted on
type Submitter interface {
	Submit(ctx context.Context, id int64) error
}

// ErrorReporter receives failures that are logged rather than surfaced to the user
type ErrorReporter interface {
	ReportError(source string, err error)
}

// Canceler is anything with pending work that must stop when the session ends
type Canceler interface {
	Cancel()
}

// State is a snapshot of the session's workflow state
type State struct {
	CurrentStep     StepKey    `json:"currentStep"`
	IsDirty         bool       `json:"isDirty"`
	LastSavedAt     *time.Time `json:"lastSavedAt"`
	AutoSaveEnabled bool       `json:"autoSaveEnabled"`
	Saving          bool       `json:"saving"`
}

// Option configures a Session
type Option func(*Session)

// WithClock sets the clock used for autosave timers and timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithInterval sets the autosave interval
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSaveTimeout bounds each timer-driven persistence call
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// WithAutoSave sets whether autosave starts enabled
func WithAutoSave(enabled bool) Option {
	return func(s *Session) { s.autoSaveEnabled = enabled }
}

// WithReporter sets the sink for autosave failures and invariant faults
func WithReporter(r ErrorReporter) Option {
	return func(s *Session) { s.reporter = r }
}

// WithSubmitter sets the collaborator that finalises prescriptions
func WithSubmitter(sub Submitter) Option {
	return func(s *Session) { s.submitter = sub }
}

// WithLogger sets the session logger
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Session) { s.logger = logger }
}

// WithStrict makes invariant violations panic instead of degrading to a no-op
func WithStrict(strict bool) Option {
	return func(s *Session) { s.strict = strict }
}

// WithSteps replaces the default step table
func WithSteps(table StepTable) Option {
	return func(s *Session) { s.table = table }
}

// Session is the state of one prescription authoring session. Each
// authoring screen owns its own Session; nothing is shared between sessions.
type Session struct {
	id          string
	table       StepTable
	drafts      DraftSource
	persister   Persister
	submitter   Submitter
	reporter    ErrorReporter
	clock       clockwork.Clock
	interval    time.Duration
	saveTimeout time.Duration
	strict      bool
	logger      *logrus.Entry

	mu              sync.Mutex
	gate            *Gate
	dirty           bool
	revision        uint64
	lastSavedAt     *time.Time
	autoSaveEnabled bool
	saving          bool
	saveDone        chan struct{} // closed when the running save finishes
	closed          bool

	// Autosave timer; timerGen invalidates callbacks of stopped timers
	timer    clockwork.Timer
	timerGen uint64

	bound       []Canceler
	subscribers map[int]func(Event)
	nextSubID   int
}

// NewSession creates a session positioned on the first step, clean, with
// autosave enabled unless an option says otherwise
func NewSession(drafts DraftSource, persister Persister, opts ...Option) *Session {
	s := &Session{
		id:              uuid.New().String(),
		table:           DefaultSteps(),
		drafts:          drafts,
		persister:       persister,
		clock:           clockwork.NewRealClock(),
		interval:        DefaultAutoSaveInterval,
		saveTimeout:     DefaultSaveTimeout,
		autoSaveEnabled: true,
		subscribers:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s.logger = s.logger.WithField("session", s.id)
	if s.reporter == nil {
		s.reporter = logReporter{logger: s.logger}
	}
	s.gate = NewGate(s.table)

	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Steps returns the ordered step list
func (s *Session) Steps() []Step {
	return s.table.Steps()
}

// State returns a snapshot of the workflow state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	state := State{
		CurrentStep:     s.gate.Current(),
		IsDirty:         s.dirty,
		AutoSaveEnabled: s.autoSaveEnabled,
		Saving:          s.saving,
	}
	if s.lastSavedAt != nil {
		t := *s.lastSavedAt
		state.LastSavedAt = &t
	}
	return state
}

// CurrentStep returns the current step key
func (s *Session) CurrentStep() StepKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.Current()
}

// CurrentStepIndex returns the table index of the current step
func (s *Session) CurrentStepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.CurrentIndex()
}

// Completed evaluates the current draft. It is recomputed on every call.
func (s *Session) Completed() CompletionSet {
	return CompletedSteps(s.table, s.drafts.CurrentDraft())
}

// IsStepCompleted reports whether the current draft satisfies the step
func (s *Session) IsStepCompleted(key StepKey) bool {
	return s.Completed().Has(key)
}

// IsStepCurrent reports whether key is the current step
func (s *Session) IsStepCurrent(key StepKey) bool {
	return s.CurrentStep() == key
}

// Progress returns the completed/total summary for the current draft
func (s *Session) Progress() Progress {
	return NewProgress(s.Completed(), s.table)
}

// CanEnter reports whether the step is reachable with the current draft
func (s *Session) CanEnter(key StepKey) bool {
	done := s.Completed()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.CanEnter(key, done)
}

// GoToStep moves to key if its prerequisites are complete
func (s *Session) GoToStep(key StepKey) bool {
	done := s.Completed()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	before := s.gate.Current()
	ok := s.gate.GoTo(key, done)
	state := s.stateLocked()
	s.mu.Unlock()

	if ok && before != key {
		s.emit(Event{Type: EventStepChanged, State: state})
	}
	return ok
}

// NextStep advances one step if the next step is enterable
func (s *Session) NextStep() (StepKey, bool) {
	done := s.Completed()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", false
	}
	if s.gate.CurrentIndex() < 0 {
		s.mu.Unlock()
		s.fault(ErrUnknownStep)
		return "", false
	}
	key, ok := s.gate.Next(done)
	state := s.stateLocked()
	s.mu.Unlock()

	if ok {
		s.emit(Event{Type: EventStepChanged, State: state})
	}
	return key, ok
}

// PreviousStep moves back one step; backward navigation is never gated
func (s *Session) PreviousStep() (StepKey, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", false
	}
	if s.gate.CurrentIndex() < 0 {
		s.mu.Unlock()
		s.fault(ErrUnknownStep)
		return "", false
	}
	key, ok := s.gate.Previous()
	state := s.stateLocked()
	s.mu.Unlock()

	if ok {
		s.emit(Event{Type: EventStepChanged, State: state})
	}
	return key, ok
}

// Bind registers pending work (such as a debounced input) that is cancelled
// when the session closes. Binding to a closed session cancels immediately.
func (s *Session) Bind(c Canceler) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Cancel()
		return
	}
	s.bound = append(s.bound, c)
	s.mu.Unlock()
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn is called synchronously from the goroutine that caused the
// event and must not block.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Submit finalises the prescription. The evaluator never completes the
// review step; submission acts on it directly once every required step is
// complete. Pending changes are saved first. The session closes on success.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.submitter == nil {
		return ErrNoSubmitter
	}

	draft := s.drafts.CurrentDraft()
	if draft == nil {
		return ErrNoDraft
	}

	done := CompletedSteps(s.table, draft)
	for _, step := range s.table.steps {
		if step.Required && !done.Has(step.Key) {
			return fmt.Errorf("%w: %s", ErrIncomplete, step.Label)
		}
	}

	if err := s.flush(ctx); err != nil {
		return fmt.Errorf("failed to save before submit: %w", err)
	}

	if err := s.submitter.Submit(ctx, draft.ID); err != nil {
		err = fmt.Errorf("failed to submit prescription %d: %w", draft.ID, err)
		s.logger.WithError(err).Error("Submit failed")
		return err
	}

	s.logger.WithField("prescription", draft.ID).Info("Prescription submitted")
	s.emit(Event{Type: EventSubmitted, State: s.State(), DraftID: draft.ID})
	s.Close()
	return nil
}

// Close ends the session: the autosave timer stops, bound work is
// cancelled and subscribers are released. A save already in flight is not
// interrupted. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	bound := s.bound
	s.bound = nil
	state := s.stateLocked()
	s.mu.Unlock()

	for _, c := range bound {
		c.Cancel()
	}

	s.emit(Event{Type: EventClosed, State: state})

	s.mu.Lock()
	s.subscribers = make(map[int]func(Event))
	s.mu.Unlock()
}

// IsClosed reports whether Close has been called
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fault handles an internal-consistency violation: loud in strict mode,
// logged and reported otherwise
func (s *Session) fault(err error) error {
	s.logger.WithError(err).Error("Workflow invariant violated")
	s.reporter.ReportError("workflow", err)
	if s.strict {
		panic(err)
	}
	return err
}

// emit delivers an event to every subscriber; callers must not hold s.mu
func (s *Session) emit(ev Event) {
	ev.SessionID = s.id
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}

	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

type logReporter struct {
	logger *logrus.Entry
}

func (r logReporter) ReportError(source string, err error) {
	r.logger.WithField("context", source).WithError(err).Error("Background operation failed")
}
