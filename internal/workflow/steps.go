package workflow

// StepKey identifies a step of the prescription authoring workflow
type StepKey string

const (
	StepPatient     StepKey = "patient"
	StepPrescriber  StepKey = "prescriber"
	StepMedications StepKey = "medications"
	StepReview      StepKey = "review"
)

// Step defines a single step in the authoring workflow
type Step struct {
	Key      StepKey `json:"key"`
	Label    string  `json:"label"`
	Required bool    `json:"required"`
}

// StepTable is an ordered, read-only list of steps. Order defines traversal
// and which steps count as "prior" for navigation gating.
type StepTable struct {
	steps []Step
	index map[StepKey]int
}

// NewStepTable builds a table from steps in traversal order
func NewStepTable(steps ...Step) StepTable {
	table := StepTable{
		steps: make([]Step, len(steps)),
		index: make(map[StepKey]int, len(steps)),
	}
	copy(table.steps, steps)
	for i, step := range table.steps {
		table.index[step.Key] = i
	}
	return table
}

var defaultSteps = NewStepTable(
	Step{Key: StepPatient, Label: "Patient Information", Required: true},
	Step{Key: StepPrescriber, Label: "Prescriber Details", Required: true},
	Step{Key: StepMedications, Label: "Medications", Required: true},
	Step{Key: StepReview, Label: "Review & Submit", Required: false},
)

// DefaultSteps returns the standard four-step prescription workflow
func DefaultSteps() StepTable {
	return defaultSteps
}

// Steps returns a copy of the steps in order
func (t StepTable) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Len returns the number of steps
func (t StepTable) Len() int {
	return len(t.steps)
}

// IndexOf returns the position of key, or -1 if the key is unknown
func (t StepTable) IndexOf(key StepKey) int {
	if i, ok := t.index[key]; ok {
		return i
	}
	return -1
}

// At returns the step at position i
func (t StepTable) At(i int) (Step, bool) {
	if i < 0 || i >= len(t.steps) {
		return Step{}, false
	}
	return t.steps[i], true
}

// Lookup returns the step with the given key
func (t StepTable) Lookup(key StepKey) (Step, bool) {
	return t.At(t.IndexOf(key))
}

// First returns the first step; the zero Step if the table is empty
func (t StepTable) First() Step {
	step, _ := t.At(0)
	return step
}
