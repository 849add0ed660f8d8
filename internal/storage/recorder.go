package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/robertguss/rxflow-go/internal/workflow"
)

// writeTimeout bounds each history write; history is best-effort
const writeTimeout = 5 * time.Second

var _ workflow.ErrorReporter = (*Recorder)(nil)

// Recorder writes workflow session activity to storage. Its Record method
// is a session subscriber and ReportError satisfies workflow.ErrorReporter.
type Recorder struct {
	store  Storage
	logger *logrus.Entry
}

// NewRecorder creates a recorder over store
func NewRecorder(store Storage, logger *logrus.Entry) *Recorder {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recorder{store: store, logger: logger}
}

// Record stores save outcomes; other events are ignored
func (r *Recorder) Record(ev workflow.Event) {
	var rec *AttemptRecord
	switch ev.Type {
	case workflow.EventSaved:
		rec = attemptFromEvent(ev, AttemptSaved)
	case workflow.EventSaveFailed:
		rec = attemptFromEvent(ev, AttemptFailed)
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.SaveAttempt(ctx, rec); err != nil {
		r.logger.WithError(err).Warn("Failed to record save attempt")
	}
}

// ReportError logs err and stores it as an error report
func (r *Recorder) ReportError(source string, err error) {
	r.logger.WithField("context", source).WithError(err).Error("Background operation failed")

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	report := &ErrorReport{Context: source, Message: err.Error()}
	if serr := r.store.SaveErrorReport(ctx, report); serr != nil {
		r.logger.WithError(serr).Warn("Failed to record error report")
	}
}

func attemptFromEvent(ev workflow.Event, status AttemptStatus) *AttemptRecord {
	return &AttemptRecord{
		SessionID:      ev.SessionID,
		PrescriptionID: ev.DraftID,
		Trigger:        string(ev.Trigger),
		Status:         status,
		StartedAt:      ev.Time.Add(-ev.Duration),
		Duration:       ev.Duration,
		Error:          ev.Error,
	}
}
