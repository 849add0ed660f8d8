package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/rxflow-go/internal/workflow"
)

func newTestRecorder(t *testing.T) (*Recorder, *SQLiteStorage, *logtest.Hook) {
	t.Helper()

	s := newTestStore(t)
	logger, hook := logtest.NewNullLogger()
	return NewRecorder(s, logrus.NewEntry(logger)), s, hook
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	finished := time.Date(2026, 3, 14, 9, 0, 1, 0, time.UTC)

	t.Run("stores saved and failed attempts", func(t *testing.T) {
		r, s, _ := newTestRecorder(t)

		r.Record(workflow.Event{
			Type:      workflow.EventSaved,
			SessionID: "session-a",
			Time:      finished,
			DraftID:   42,
			Trigger:   workflow.TriggerAuto,
			Duration:  time.Second,
		})
		r.Record(workflow.Event{
			Type:      workflow.EventSaveFailed,
			SessionID: "session-a",
			Time:      finished.Add(time.Minute),
			DraftID:   42,
			Trigger:   workflow.TriggerManual,
			Duration:  250 * time.Millisecond,
			Error:     "autosave of prescription 42 failed: boom",
		})

		got, err := s.ListAttempts(ctx, &AttemptFilter{PrescriptionID: 42})
		require.NoError(t, err)
		require.Len(t, got, 2)

		failed, saved := got[0], got[1]
		assert.Equal(t, AttemptFailed, failed.Status)
		assert.Equal(t, "manual", failed.Trigger)
		assert.Contains(t, failed.Error, "boom")

		assert.Equal(t, AttemptSaved, saved.Status)
		assert.Equal(t, "auto", saved.Trigger)
		assert.Equal(t, "session-a", saved.SessionID)
		assert.True(t, finished.Add(-time.Second).Equal(saved.StartedAt))
		assert.Equal(t, time.Second, saved.Duration)
	})

	t.Run("ignores other events", func(t *testing.T) {
		r, s, _ := newTestRecorder(t)

		for _, typ := range []workflow.EventType{
			workflow.EventStepChanged,
			workflow.EventDirtyChanged,
			workflow.EventSubmitted,
			workflow.EventClosed,
		} {
			r.Record(workflow.Event{Type: typ, SessionID: "session-a", Time: finished})
		}

		count, err := s.CountAttempts(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("logs write failures", func(t *testing.T) {
		r, s, hook := newTestRecorder(t)
		require.NoError(t, s.Close())

		r.Record(workflow.Event{Type: workflow.EventSaved, Time: finished})

		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})
}

func TestRecorder_ReportError(t *testing.T) {
	r, s, hook := newTestRecorder(t)

	r.ReportError("workflow", errors.New("no draft loaded"))

	reports, err := s.ListErrorReports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "workflow", reports[0].Context)
	assert.Equal(t, "no draft loaded", reports[0].Message)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "workflow", entry.Data["context"])
}
