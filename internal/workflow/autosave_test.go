package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/rxflow-go/internal/testutil/fakeclock"
)

const (
	interval = 30 * time.Second
	waitFor  = time.Second
	tick     = 5 * time.Millisecond
)

func TestMarkDirty_ArmsOneTimer(t *testing.T) {
	t.Run("first edit arms the timer", func(t *testing.T) {
		s, _, _, clock := newTestSession(t, draftWith(true, false, false))

		s.MarkDirty()
		s.MarkDirty()
		s.MarkDirty()

		assert.True(t, s.IsDirty())
		assert.Equal(t, 1, clock.Active())
		assert.Equal(t, 1, clock.Created())
	})

	t.Run("clean stops the timer and stamps the save time", func(t *testing.T) {
		s, _, _, clock := newTestSession(t, draftWith(true, false, false))
		start := clock.Now()

		s.MarkDirty()
		s.MarkClean()

		assert.False(t, s.IsDirty())
		assert.Equal(t, 0, clock.Active())
		require.NotNil(t, s.LastSavedAt())
		assert.Equal(t, start, *s.LastSavedAt())
	})

	t.Run("dirty clean dirty leaves a single timer", func(t *testing.T) {
		s, _, _, clock := newTestSession(t, draftWith(true, false, false))

		s.MarkDirty()
		s.MarkClean()
		s.MarkDirty()

		assert.Equal(t, 1, clock.Active())
		assert.Equal(t, 2, clock.Created())
	})

	t.Run("nothing is armed while autosave is disabled", func(t *testing.T) {
		s, _, _, clock := newTestSession(t, draftWith(true, false, false), WithAutoSave(false))

		s.MarkDirty()

		assert.True(t, s.IsDirty())
		assert.Equal(t, 0, clock.Created())
	})
}

func TestAutoSave_RetriesUntilSuccess(t *testing.T) {
	reporter := &fakeReporter{}
	s, _, persister, clock := newTestSession(t, draftWith(true, true, false), WithReporter(reporter))
	persister.results = []error{errBackend, errBackend}

	s.MarkDirty()

	for attempt := 1; attempt <= 2; attempt++ {
		clock.Advance(interval)
		require.Eventually(t, func() bool { return reporter.Count() == attempt }, waitFor, tick)

		assert.Equal(t, attempt, persister.Calls())
		assert.True(t, s.IsDirty())
		assert.Nil(t, s.LastSavedAt())
	}

	clock.Advance(interval)
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)

	require.NotNil(t, s.LastSavedAt())
	assert.Equal(t, 3, persister.Calls())
	require.Eventually(t, func() bool { return clock.Active() == 0 }, waitFor, tick)

	clock.Advance(interval)
	assert.Never(t, func() bool { return persister.Calls() > 3 }, 50*time.Millisecond, tick)
}

func TestAutoSave_FailureIsLoggedAndReported(t *testing.T) {
	reporter := &fakeReporter{}
	logger, hook := logtest.NewNullLogger()
	s, _, persister, _ := newTestSession(t, draftWith(true, false, false),
		WithReporter(reporter), WithLogger(logrus.NewEntry(logger)))
	persister.results = []error{errBackend}
	rec := &eventRecorder{}
	s.Subscribe(rec.Record)

	s.MarkDirty()
	err := s.AutoSave(context.Background())

	require.ErrorIs(t, err, errBackend)
	assert.Contains(t, err.Error(), "autosave of prescription 42 failed")
	assert.Equal(t, []string{"autosave"}, reporter.Sources())
	assert.Equal(t, []EventType{EventDirtyChanged, EventSaveFailed}, rec.Types())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Save failed, draft stays dirty", entry.Message)
}

func TestAutoSave_SkipsTickWhileSaving(t *testing.T) {
	s, _, persister, clock := newTestSession(t, draftWith(true, false, false))
	persister.entered = make(chan struct{}, 4)
	persister.gate = make(chan struct{})

	s.MarkDirty()
	clock.Advance(interval)
	<-persister.entered
	assert.True(t, s.State().Saving)

	// Second tick lands while the first save is blocked
	clock.Advance(interval)
	require.Eventually(t, func() bool { return clock.Created() == 3 }, waitFor, tick)
	assert.Equal(t, 1, persister.Calls())

	close(persister.gate)
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)
	assert.Equal(t, 1, persister.Calls())
}

func TestSubmit_WaitsForRunningAutosave(t *testing.T) {
	tests := []struct {
		name      string
		results   []error
		wantCalls int
	}{
		{"autosave succeeds", nil, 1},
		{"autosave fails and submit saves again", []error{errBackend}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &fakeSubmitter{}
			s, _, persister, clock := newTestSession(t, draftWith(true, true, true), WithSubmitter(submitter))
			persister.results = tt.results
			persister.entered = make(chan struct{}, 4)
			persister.gate = make(chan struct{})

			s.MarkDirty()
			clock.Advance(interval)
			<-persister.entered

			errc := make(chan error, 1)
			go func() { errc <- s.Submit(context.Background()) }()

			require.Never(t, func() bool { return len(errc) > 0 }, 50*time.Millisecond, tick)
			close(persister.gate)

			select {
			case err := <-errc:
				require.NoError(t, err)
			case <-time.After(waitFor):
				t.Fatal("submit did not finish after the autosave completed")
			}
			assert.Equal(t, tt.wantCalls, persister.Calls())
			assert.Equal(t, []int64{42}, submitter.IDs())
			assert.True(t, s.IsClosed())
		})
	}
}

func TestSubmit_WaitForSaveHonoursContext(t *testing.T) {
	submitter := &fakeSubmitter{}
	s, _, persister, clock := newTestSession(t, draftWith(true, true, true), WithSubmitter(submitter))
	persister.entered = make(chan struct{}, 4)
	persister.gate = make(chan struct{})
	defer close(persister.gate)

	s.MarkDirty()
	clock.Advance(interval)
	<-persister.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Submit(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, submitter.IDs())
	assert.False(t, s.IsClosed())
}

func TestSave_ManualFailureIsLabelledManual(t *testing.T) {
	reporter := &fakeReporter{}
	s, _, persister, _ := newTestSession(t, draftWith(true, false, false),
		WithReporter(reporter), WithAutoSave(false))
	persister.results = []error{errBackend}

	s.MarkDirty()
	err := s.Save(context.Background())

	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, "manual save of prescription 42 failed: backend unavailable", err.Error())
	assert.Equal(t, []string{"manual save"}, reporter.Sources())
}

func TestAutoSave_EditDuringSaveStaysDirty(t *testing.T) {
	s, _, persister, clock := newTestSession(t, draftWith(true, false, false))
	persister.entered = make(chan struct{}, 4)
	persister.gate = make(chan struct{})

	s.MarkDirty()
	clock.Advance(interval)
	<-persister.entered

	s.MarkDirty()
	close(persister.gate)

	require.Eventually(t, func() bool { return s.LastSavedAt() != nil }, waitFor, tick)
	assert.True(t, s.IsDirty())
	assert.Equal(t, 1, clock.Active())

	clock.Advance(interval)
	<-persister.entered
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)
	assert.Equal(t, 2, persister.Calls())
}

func TestAutoSave_NoDraft(t *testing.T) {
	ctx := context.Background()

	t.Run("reported when not strict", func(t *testing.T) {
		reporter := &fakeReporter{}
		s, _, persister, _ := newTestSession(t, nil, WithReporter(reporter))
		s.MarkDirty()

		assert.ErrorIs(t, s.AutoSave(ctx), ErrNoDraft)
		assert.Equal(t, 1, reporter.Count())
		assert.Equal(t, 0, persister.Calls())
		assert.True(t, s.IsDirty())
		assert.False(t, s.State().Saving)
	})

	t.Run("panics when strict", func(t *testing.T) {
		s, _, _, _ := newTestSession(t, nil, WithStrict(true))
		s.MarkDirty()

		assert.PanicsWithValue(t, ErrNoDraft, func() { _ = s.AutoSave(ctx) })
	})
}

func TestAutoSave_CleanSessionDoesNothing(t *testing.T) {
	s, _, persister, _ := newTestSession(t, draftWith(true, false, false))

	require.NoError(t, s.AutoSave(context.Background()))
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 0, persister.Calls())
}

func TestSetAutoSaveEnabled(t *testing.T) {
	ctx := context.Background()

	t.Run("disabling stops the timer and skips autosave", func(t *testing.T) {
		s, _, persister, clock := newTestSession(t, draftWith(true, false, false))
		s.MarkDirty()

		s.SetAutoSaveEnabled(false)
		assert.Equal(t, 0, clock.Active())
		assert.False(t, s.AutoSaveEnabled())

		clock.Advance(interval)
		assert.Never(t, func() bool { return persister.Calls() > 0 }, 50*time.Millisecond, tick)
		require.NoError(t, s.AutoSave(ctx))
		assert.Equal(t, 0, persister.Calls())

		require.NoError(t, s.Save(ctx))
		assert.Equal(t, 1, persister.Calls())
		assert.False(t, s.IsDirty())
	})

	t.Run("enabling while dirty arms the timer", func(t *testing.T) {
		s, _, _, clock := newTestSession(t, draftWith(true, false, false), WithAutoSave(false))
		s.MarkDirty()

		s.SetAutoSaveEnabled(true)
		s.SetAutoSaveEnabled(true)

		assert.Equal(t, 1, clock.Active())
	})
}

func TestSave_OverlapIsRejected(t *testing.T) {
	ctx := context.Background()
	s, _, persister, _ := newTestSession(t, draftWith(true, false, false), WithAutoSave(false))
	persister.entered = make(chan struct{}, 4)
	persister.gate = make(chan struct{})
	s.MarkDirty()

	done := make(chan error, 1)
	go func() { done <- s.Save(ctx) }()
	<-persister.entered

	assert.ErrorIs(t, s.Save(ctx), ErrSaveInProgress)
	assert.NoError(t, s.AutoSave(ctx))

	close(persister.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, persister.Calls())
}

func TestClose_StopsTicking(t *testing.T) {
	s, _, persister, clock := newTestSession(t, draftWith(true, false, false))
	s.MarkDirty()

	s.Close()
	clock.Advance(interval)

	assert.Never(t, func() bool { return persister.Calls() > 0 }, 50*time.Millisecond, tick)
	assert.Equal(t, 0, clock.Active())
}

// Guard against the fake clock and session disagreeing about time
func TestAutoSave_UsesSessionClock(t *testing.T) {
	clock := fakeclock.NewCountingClock()
	s := NewSession(newFakeDrafts(draftWith(true, false, false)), &fakePersister{}, WithClock(clock), WithInterval(time.Minute))
	defer s.Close()

	s.MarkDirty()
	clock.Advance(interval)
	assert.Never(t, func() bool { return !s.IsDirty() }, 50*time.Millisecond, tick)

	clock.Advance(interval)
	require.Eventually(t, func() bool { return !s.IsDirty() }, waitFor, tick)
	assert.Equal(t, clock.Now(), *s.LastSavedAt())
}

func TestSetAutoSaveInterval(t *testing.T) {
	s, _, persister, clock := newTestSession(t, draftWith(true, false, false))
	s.MarkDirty()

	s.SetAutoSaveInterval(10 * time.Second)
	s.SetAutoSaveInterval(0)

	assert.Equal(t, 10*time.Second, s.AutoSaveInterval())
	assert.Equal(t, 1, clock.Active())
	assert.Equal(t, 2, clock.Created())

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return persister.Calls() == 1 }, waitFor, tick)
}
