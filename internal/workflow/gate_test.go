package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultSteps(t *testing.T) {
	table := DefaultSteps()

	require.Equal(t, 4, table.Len())
	assert.Equal(t, []StepKey{StepPatient, StepPrescriber, StepMedications, StepReview}, CompletionSet(table.Steps()).Keys())

	review, ok := table.Lookup(StepReview)
	require.True(t, ok)
	assert.False(t, review.Required)
	assert.Equal(t, "Review & Submit", review.Label)

	assert.Equal(t, StepPatient, table.First().Key)
	assert.Equal(t, -1, table.IndexOf("pharmacy"))

	_, ok = table.At(4)
	assert.False(t, ok)
}

func TestStepTable_StepsIsACopy(t *testing.T) {
	table := DefaultSteps()
	steps := table.Steps()
	steps[0].Label = "changed"

	assert.Equal(t, "Patient Information", table.First().Label)
}

func TestGate_CanEnter(t *testing.T) {
	table := DefaultSteps()

	tests := []struct {
		name  string
		draft func() CompletionSet
		key   StepKey
		want  bool
	}{
		{"current step always enterable", func() CompletionSet { return nil }, StepPatient, true},
		{"prescriber blocked without patient", func() CompletionSet { return nil }, StepPrescriber, false},
		{"prescriber open with patient", func() CompletionSet {
			return CompletedSteps(table, draftWith(true, false, false))
		}, StepPrescriber, true},
		{"medications blocked by missing patient", func() CompletionSet {
			return CompletedSteps(table, draftWith(false, true, false))
		}, StepMedications, false},
		{"review blocked by missing medications", func() CompletionSet {
			return CompletedSteps(table, draftWith(true, true, false))
		}, StepReview, false},
		{"review open when all required complete", func() CompletionSet {
			return CompletedSteps(table, draftWith(true, true, true))
		}, StepReview, true},
		{"unknown key", func() CompletionSet {
			return CompletedSteps(table, draftWith(true, true, true))
		}, "billing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(table)
			assert.Equal(t, tt.want, gate.CanEnter(tt.key, tt.draft()))
		})
	}
}

func TestGate_OptionalPriorStepNeverBlocks(t *testing.T) {
	table := NewStepTable(
		Step{Key: "notes", Label: "Notes", Required: false},
		Step{Key: StepPatient, Label: "Patient", Required: true},
		Step{Key: StepPrescriber, Label: "Prescriber", Required: true},
	)
	gate := NewGate(table)

	assert.True(t, gate.CanEnter(StepPatient, nil))
	assert.False(t, gate.CanEnter(StepPrescriber, nil))
}

func TestGate_Next(t *testing.T) {
	table := DefaultSteps()

	t.Run("blocked next leaves current unchanged", func(t *testing.T) {
		gate := NewGate(table)

		key, ok := gate.Next(CompletedSteps(table, nil))

		assert.False(t, ok)
		assert.Empty(t, key)
		assert.Equal(t, StepPatient, gate.Current())
	})

	t.Run("walks to review and stops", func(t *testing.T) {
		gate := NewGate(table)
		done := CompletedSteps(table, draftWith(true, true, true))

		for _, want := range []StepKey{StepPrescriber, StepMedications, StepReview} {
			key, ok := gate.Next(done)
			require.True(t, ok)
			assert.Equal(t, want, key)
		}

		_, ok := gate.Next(done)
		assert.False(t, ok)
		assert.Equal(t, StepReview, gate.Current())
	})

	t.Run("unknown current key is no transition", func(t *testing.T) {
		gate := NewGate(table)
		gate.current = "corrupted"

		_, ok := gate.Next(CompletedSteps(table, draftWith(true, true, true)))
		assert.False(t, ok)

		_, ok = gate.Previous()
		assert.False(t, ok)
		assert.Equal(t, -1, gate.CurrentIndex())
	})
}

func TestGate_Previous(t *testing.T) {
	table := DefaultSteps()
	gate := NewGate(table)

	_, ok := gate.Previous()
	assert.False(t, ok, "first step has no previous")

	require.True(t, gate.GoTo(StepReview, CompletedSteps(table, draftWith(true, true, true))))

	// Backward moves are allowed even once the draft no longer satisfies anything
	for _, want := range []StepKey{StepMedications, StepPrescriber, StepPatient} {
		key, ok := gate.Previous()
		require.True(t, ok)
		assert.Equal(t, want, key)
	}
}

func TestGate_GoToCurrentIsNoop(t *testing.T) {
	gate := NewGate(DefaultSteps())

	assert.True(t, gate.GoTo(StepPatient, nil))
	assert.Equal(t, StepPatient, gate.Current())
}

// drafts generates arbitrary combinations of filled-in draft parts
func drafts() *rapid.Generator[[3]bool] {
	return rapid.Custom(func(t *rapid.T) [3]bool {
		return [3]bool{
			rapid.Bool().Draw(t, "patient"),
			rapid.Bool().Draw(t, "prescriber"),
			rapid.Bool().Draw(t, "medication"),
		}
	})
}

func TestGate_Properties(t *testing.T) {
	table := DefaultSteps()
	keys := []StepKey{StepPatient, StepPrescriber, StepMedications, StepReview}

	t.Run("review is never completed by draft content", rapid.MakeCheck(func(t *rapid.T) {
		parts := drafts().Draw(t, "draft")
		done := CompletedSteps(table, draftWith(parts[0], parts[1], parts[2]))
		if done.Has(StepReview) {
			t.Fatal("review reported complete")
		}
	}))

	t.Run("reachability is monotonic in step order", rapid.MakeCheck(func(t *rapid.T) {
		parts := drafts().Draw(t, "draft")
		done := CompletedSteps(table, draftWith(parts[0], parts[1], parts[2]))
		gate := NewGate(table)

		blocked := false
		for _, key := range keys {
			ok := gate.CanEnter(key, done)
			if blocked && ok {
				t.Fatalf("%s enterable after an earlier step was blocked", key)
			}
			if !ok {
				blocked = true
			}
		}
	}))

	t.Run("random walks keep the gate invariant", rapid.MakeCheck(func(t *rapid.T) {
		parts := drafts().Draw(t, "draft")
		done := CompletedSteps(table, draftWith(parts[0], parts[1], parts[2]))
		gate := NewGate(table)

		moves := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 30).Draw(t, "moves")
		for _, move := range moves {
			before := gate.Current()
			switch move {
			case 0:
				gate.Next(done)
			case 1:
				_, ok := gate.Previous()
				if !ok && table.IndexOf(before) > 0 {
					t.Fatalf("previous refused from %s", before)
				}
			case 2:
				target := rapid.SampledFrom(keys).Draw(t, "target")
				if !gate.GoTo(before, done) {
					t.Fatalf("goto current step %s refused", before)
				}
				gate.GoTo(target, done)
			}

			idx := gate.CurrentIndex()
			if idx < 0 {
				t.Fatalf("gate left the table: %s", gate.Current())
			}
			for _, step := range table.steps[:idx] {
				if step.Required && !done.Has(step.Key) && gate.Current() != before && idx > table.IndexOf(before) {
					t.Fatalf("moved forward to %s past incomplete %s", gate.Current(), step.Key)
				}
			}
		}
	}))
}
