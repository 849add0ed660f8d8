package workflow

import (
	"github.com/robertguss/rxflow-go/internal/domain"
)

// predicate reports whether a draft satisfies a step
type predicate func(draft *domain.Prescription) bool

// Review is the terminal action; it is completed by submission, never by
// draft content, so it has no predicate.
var predicates = map[StepKey]predicate{
	StepPatient:     (*domain.Prescription).HasPatient,
	StepPrescriber:  (*domain.Prescription).HasPrescriber,
	StepMedications: func(draft *domain.Prescription) bool { return draft.MedicationCount() > 0 },
}

// CompletionSet is the subset of steps a draft currently satisfies, in table order
type CompletionSet []Step

// Has returns true if the step with the given key is in the set
func (c CompletionSet) Has(key StepKey) bool {
	for _, step := range c {
		if step.Key == key {
			return true
		}
	}
	return false
}

// Len returns the number of completed steps
func (c CompletionSet) Len() int {
	return len(c)
}

// Keys returns the keys of the completed steps
func (c CompletionSet) Keys() []StepKey {
	keys := make([]StepKey, len(c))
	for i, step := range c {
		keys[i] = step.Key
	}
	return keys
}

// CompletedSteps evaluates every step's predicate against draft independently.
// A nil draft completes nothing.
func CompletedSteps(table StepTable, draft *domain.Prescription) CompletionSet {
	done := make(CompletionSet, 0, table.Len())
	if draft == nil {
		return done
	}

	for _, step := range table.steps {
		check, ok := predicates[step.Key]
		if ok && check(draft) {
			done = append(done, step)
		}
	}
	return done
}

// Progress summarises how much of the workflow is complete
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// NewProgress computes a progress summary; the percentage is rounded to the nearest integer
func NewProgress(done CompletionSet, table StepTable) Progress {
	p := Progress{Completed: done.Len(), Total: table.Len()}
	if p.Total > 0 {
		p.Percentage = (p.Completed*200 + p.Total) / (p.Total * 2)
	}
	return p
}
