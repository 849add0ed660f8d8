package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/robertguss/rxflow-go/internal/domain"
)

var errBackend = errors.New("backend unavailable")

// fakeDrafts is a DraftSource holding a single draft
type fakeDrafts struct {
	mu    sync.Mutex
	draft *domain.Prescription
}

func newFakeDrafts(draft *domain.Prescription) *fakeDrafts {
	return &fakeDrafts{draft: draft}
}

func (f *fakeDrafts) CurrentDraft() *domain.Prescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Clone()
}

func (f *fakeDrafts) Set(draft *domain.Prescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = draft
}

// fakePersister records calls and returns queued results in order; once the
// queue is empty every call succeeds. If gate is set each call waits on it.
type fakePersister struct {
	mu      sync.Mutex
	calls   []int64
	results []error
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakePersister) Persist(ctx context.Context, id int64, _ *domain.Prescription) error {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		f.results = f.results[1:]
	}
	entered, gate := f.entered, f.gate
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakePersister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSubmitter) IDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...)
}

type fakeSubmitter struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

type fakeReporter struct {
	mu      sync.Mutex
	errs    []error
	sources []string
}

func (f *fakeReporter) ReportError(source string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	f.sources = append(f.sources, source)
}

func (f *fakeReporter) Sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

func (f *fakeReporter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

type fakeCanceler struct {
	mu        sync.Mutex
	cancelled int
}

func (f *fakeCanceler) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
}

func (f *fakeCanceler) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// eventRecorder collects session events
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

func patient() *domain.Patient {
	return &domain.Patient{ID: 1, Contact: domain.ContactInfo{FirstName: "Ada", LastName: "Lovelace"}}
}

func prescriber() *domain.Prescriber {
	return &domain.Prescriber{ID: 2, Contact: domain.ContactInfo{FirstName: "Gregory", LastName: "House"}, NPI: "1234567893"}
}

func medication() domain.PrescriptionItem {
	return domain.PrescriptionItem{MedicationID: 3, Name: "Amoxicillin", Quantity: 30, Sig: "1 cap PO TID", Refills: 0}
}

// draftWith builds a draft with the given parts filled in
func draftWith(withPatient, withPrescriber, withMedication bool) *domain.Prescription {
	rx := domain.NewPrescription()
	rx.ID = 42
	if withPatient {
		rx.Patient = patient()
	}
	if withPrescriber {
		rx.Prescriber = prescriber()
	}
	if withMedication {
		rx.Medications = append(rx.Medications, medication())
	}
	return rx
}
