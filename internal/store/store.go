// Package store owns the prescription being authored and the backend
// lookups that fill it in. Readers always get a snapshot of the draft.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/tracing"
	"github.com/robertguss/rxflow-go/internal/workflow"
)

// Lookup cache timings
const (
	DefaultLookupTTL    = 5 * time.Minute
	lookupCleanupPeriod = 10 * time.Minute
)

var (
	// ErrNoDraft is returned when an edit is attempted with no draft loaded
	ErrNoDraft = errors.New("no prescription draft loaded")

	// ErrDraftMismatch is returned when asked to persist a draft other than the current one
	ErrDraftMismatch = errors.New("prescription is not the current draft")
)

var (
	_ workflow.DraftSource = (*Store)(nil)
	_ workflow.Persister   = (*Store)(nil)
	_ workflow.Submitter   = (*Store)(nil)
)

// Backend is the REST surface the store uses
type Backend interface {
	GetPatient(ctx context.Context, id int64) (*domain.Patient, error)
	SearchPatients(ctx context.Context, query string) ([]domain.Patient, error)
	GetPrescriber(ctx context.Context, id int64) (*domain.Prescriber, error)
	GetPrescriberByNPI(ctx context.Context, npi string) (*domain.Prescriber, error)
	ListMedications(ctx context.Context) ([]domain.Medication, error)
	GetMedication(ctx context.Context, id int64) (*domain.Medication, error)
	GetPrescription(ctx context.Context, id int64) (*domain.Prescription, error)
	CreatePrescription(ctx context.Context, p *domain.Prescription) (*domain.Prescription, error)
	UpdatePrescription(ctx context.Context, id int64, p *domain.Prescription) (*domain.Prescription, error)
	UpdatePrescriptionStatus(ctx context.Context, id int64, status domain.RxStatus) error
}

// Store holds the current draft
type Store struct {
	backend  Backend
	lookups  *cache.Cache
	tracer   trace.Tracer
	logger   *logrus.Entry
	validate *validator.Validate

	mu    sync.RWMutex
	draft *domain.Prescription
}

// Option configures a Store
type Option func(*Store)

// WithLookupTTL sets how long lookup results are cached
func WithLookupTTL(ttl time.Duration) Option {
	return func(s *Store) { s.lookups = cache.New(ttl, lookupCleanupPeriod) }
}

// WithTracer sets the tracer used for persistence spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) { s.tracer = tracer }
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates an empty store over backend
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		lookups:  cache.New(DefaultLookupTTL, lookupCleanupPeriod),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = tracing.Tracer()
	}
	if s.logger == nil {
		s.logger = logrus.WithField("module", "store")
	}
	return s
}

// CurrentDraft returns a snapshot of the draft, or nil when none is loaded
func (s *Store) CurrentDraft() *domain.Prescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft.Clone()
}

// HasDraft returns true if a draft is loaded
func (s *Store) HasDraft() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft != nil
}

// NewDraft creates a held prescription on the backend and makes it current
func (s *Store) NewDraft(ctx context.Context) (*domain.Prescription, error) {
	draft := domain.NewPrescription()
	draft.Status = domain.RxHold

	created, err := s.backend.CreatePrescription(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create prescription: %w", err)
	}
	if created.Medications == nil {
		created.Medications = make([]domain.PrescriptionItem, 0)
	}

	s.mu.Lock()
	s.draft = created
	s.mu.Unlock()

	s.logger.WithField("prescription", created.ID).Info("Draft created")
	return created.Clone(), nil
}

// Load fetches an existing prescription and makes it current
func (s *Store) Load(ctx context.Context, id int64) (*domain.Prescription, error) {
	p, err := s.backend.GetPrescription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load prescription %d: %w", id, err)
	}

	s.mu.Lock()
	s.draft = p
	s.mu.Unlock()

	return p.Clone(), nil
}

// Clear drops the current draft
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
}

// Edit applies fn to the current draft under the store lock
func (s *Store) Edit(fn func(*domain.Prescription)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return ErrNoDraft
	}
	fn(s.draft)
	return nil
}

// SetPatient attaches (or with nil, detaches) the patient
func (s *Store) SetPatient(p *domain.Patient) error {
	return s.Edit(func(d *domain.Prescription) { d.Patient = clonePatient(p) })
}

// SetPrescriber attaches (or with nil, detaches) the prescriber
func (s *Store) SetPrescriber(p *domain.Prescriber) error {
	return s.Edit(func(d *domain.Prescription) { d.Prescriber = clonePrescriber(p) })
}

// AddMedication validates and appends a medication line
func (s *Store) AddMedication(item domain.PrescriptionItem) error {
	if err := s.validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid medication: %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid medication: %w", err)
	}
	return s.Edit(func(d *domain.Prescription) { d.Medications = append(d.Medications, item) })
}

// RemoveMedication removes the line at index i
func (s *Store) RemoveMedication(i int) error {
	var outOfRange bool
	err := s.Edit(func(d *domain.Prescription) {
		if i < 0 || i >= len(d.Medications) {
			outOfRange = true
			return
		}
		d.Medications = append(d.Medications[:i], d.Medications[i+1:]...)
	})
	if err != nil {
		return err
	}
	if outOfRange {
		return fmt.Errorf("medication index %d out of range", i)
	}
	return nil
}

// SetNotes replaces the free-text notes
func (s *Store) SetNotes(notes string) error {
	return s.Edit(func(d *domain.Prescription) { d.Notes = notes })
}

// Persist writes draft to the backend. The in-memory draft is not replaced,
// so edits made while the request was in flight survive.
func (s *Store) Persist(ctx context.Context, id int64, draft *domain.Prescription) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.persist",
		trace.WithAttributes(attribute.Int64(tracing.PrescriptionIDKey, id)))
	defer func() { tracing.End(span, err) }()

	if draft == nil || draft.ID != id {
		return ErrDraftMismatch
	}

	updated, err := s.backend.UpdatePrescription(ctx, id, draft)
	if err != nil {
		return fmt.Errorf("failed to update prescription %d: %w", id, err)
	}

	// Adopt server-assigned fields only
	if updated != nil && updated.RxNumber != "" {
		s.mu.Lock()
		if s.draft != nil && s.draft.ID == id {
			s.draft.RxNumber = updated.RxNumber
		}
		s.mu.Unlock()
	}
	return nil
}

// Submit activates the prescription on the backend
func (s *Store) Submit(ctx context.Context, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.submit",
		trace.WithAttributes(attribute.Int64(tracing.PrescriptionIDKey, id)))
	defer func() { tracing.End(span, err) }()

	if err := s.backend.UpdatePrescriptionStatus(ctx, id, domain.RxActive); err != nil {
		return fmt.Errorf("failed to activate prescription %d: %w", id, err)
	}

	s.mu.Lock()
	if s.draft != nil && s.draft.ID == id {
		s.draft.Status = domain.RxActive
	}
	s.mu.Unlock()
	return nil
}

// Patient looks up a patient, using the cache
func (s *Store) Patient(ctx context.Context, id int64) (*domain.Patient, error) {
	key := fmt.Sprintf("patient:%d", id)
	if v, ok := s.lookups.Get(key); ok {
		return clonePatient(v.(*domain.Patient)), nil
	}

	p, err := s.backend.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lookups.SetDefault(key, p)
	return clonePatient(p), nil
}

// SearchPatients searches patients by free text, using the cache
func (s *Store) SearchPatients(ctx context.Context, query string) ([]domain.Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := "patients:" + strings.ToLower(query)
	if v, ok := s.lookups.Get(key); ok {
		return append([]domain.Patient(nil), v.([]domain.Patient)...), nil
	}

	patients, err := s.backend.SearchPatients(ctx, query)
	if err != nil {
		return nil, err
	}
	s.lookups.SetDefault(key, patients)
	return append([]domain.Patient(nil), patients...), nil
}

// Prescriber looks up a prescriber by ID, using the cache
func (s *Store) Prescriber(ctx context.Context, id int64) (*domain.Prescriber, error) {
	key := fmt.Sprintf("prescriber:%d", id)
	if v, ok := s.lookups.Get(key); ok {
		return clonePrescriber(v.(*domain.Prescriber)), nil
	}

	p, err := s.backend.GetPrescriber(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lookups.SetDefault(key, p)
	return clonePrescriber(p), nil
}

// PrescriberByNPI looks up a prescriber by NPI, using the cache
func (s *Store) PrescriberByNPI(ctx context.Context, npi string) (*domain.Prescriber, error) {
	key := "npi:" + npi
	if v, ok := s.lookups.Get(key); ok {
		return clonePrescriber(v.(*domain.Prescriber)), nil
	}

	p, err := s.backend.GetPrescriberByNPI(ctx, npi)
	if err != nil {
		return nil, err
	}
	s.lookups.SetDefault(key, p)
	return clonePrescriber(p), nil
}

// Medications lists the medication catalogue, using the cache
func (s *Store) Medications(ctx context.Context) ([]domain.Medication, error) {
	const key = "medications"
	if v, ok := s.lookups.Get(key); ok {
		return append([]domain.Medication(nil), v.([]domain.Medication)...), nil
	}

	meds, err := s.backend.ListMedications(ctx)
	if err != nil {
		return nil, err
	}
	s.lookups.SetDefault(key, meds)
	return append([]domain.Medication(nil), meds...), nil
}

// Medication looks up one catalogue entry, using the cache
func (s *Store) Medication(ctx context.Context, id int64) (*domain.Medication, error) {
	key := fmt.Sprintf("medication:%d", id)
	if v, ok := s.lookups.Get(key); ok {
		m := *v.(*domain.Medication)
		return &m, nil
	}

	m, err := s.backend.GetMedication(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lookups.SetDefault(key, m)
	copied := *m
	return &copied, nil
}

// InvalidateLookups drops every cached lookup
func (s *Store) InvalidateLookups() {
	s.lookups.Flush()
}

func clonePatient(p *domain.Patient) *domain.Patient {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func clonePrescriber(p *domain.Prescriber) *domain.Prescriber {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
