package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MarkDirty records an unsaved edit. The autosave timer starts on the
// clean-to-dirty transition only; further edits leave it running.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.revision++
	if s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = true
	if s.autoSaveEnabled {
		s.startTimerLocked()
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventDirtyChanged, State: state})
}

// MarkClean records that the draft was saved elsewhere. The timer stops and
// the last-saved time is stamped.
func (s *Session) MarkClean() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasDirty := s.dirty
	s.dirty = false
	now := s.clock.Now()
	s.lastSavedAt = &now
	s.stopTimerLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	if wasDirty {
		s.emit(Event{Type: EventDirtyChanged, State: state})
	}
}

// IsDirty reports whether there are unsaved edits
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// LastSavedAt returns the time of the last successful save, or nil
func (s *Session) LastSavedAt() *time.Time {
	return s.State().LastSavedAt
}

// SetAutoSaveEnabled turns autosave on or off. Disabling stops the timer;
// enabling while dirty starts it.
func (s *Session) SetAutoSaveEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.autoSaveEnabled == enabled {
		return
	}
	s.autoSaveEnabled = enabled
	if !enabled {
		s.stopTimerLocked()
		return
	}
	if s.dirty {
		s.startTimerLocked()
	}
}

// SetAutoSaveInterval changes the autosave interval. A running timer is
// re-armed with the new interval.
func (s *Session) SetAutoSaveInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.interval == d {
		return
	}
	s.interval = d
	if s.timer != nil {
		s.startTimerLocked()
	}
}

// AutoSaveInterval returns the autosave interval
func (s *Session) AutoSaveInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// AutoSaveEnabled reports whether autosave is on
func (s *Session) AutoSaveEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSaveEnabled
}

// AutoSave persists the draft if it is dirty and autosave is enabled. It is
// what each timer tick runs. A save already in flight makes it a no-op.
func (s *Session) AutoSave(ctx context.Context) error {
	err := s.save(ctx, TriggerAuto)
	if errors.Is(err, ErrSaveInProgress) {
		return nil
	}
	return err
}

// Save persists the draft if it is dirty, regardless of the autosave setting
func (s *Session) Save(ctx context.Context) error {
	return s.save(ctx, TriggerManual)
}

func (s *Session) save(ctx context.Context, trigger Trigger) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if trigger == TriggerManual {
			return ErrClosed
		}
		return nil
	}
	if !s.dirty || (trigger == TriggerAuto && !s.autoSaveEnabled) {
		s.mu.Unlock()
		return nil
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	s.saving = true
	s.saveDone = make(chan struct{})
	revision := s.revision
	s.mu.Unlock()

	draft := s.drafts.CurrentDraft()
	if draft == nil {
		s.mu.Lock()
		s.finishSaveLocked()
		s.mu.Unlock()
		return s.fault(ErrNoDraft)
	}

	logger := s.logger.WithField("prescription", draft.ID).WithField("trigger", trigger)
	logger.Debug("Saving draft")

	start := s.clock.Now()
	err := s.persister.Persist(ctx, draft.ID, draft)
	duration := s.clock.Since(start)

	s.mu.Lock()
	s.finishSaveLocked()
	if err != nil {
		state := s.stateLocked()
		s.mu.Unlock()

		source := "autosave"
		if trigger == TriggerManual {
			source = "manual save"
		}
		err = fmt.Errorf("%s of prescription %d failed: %w", source, draft.ID, err)
		logger.WithError(err).Warn("Save failed, draft stays dirty")
		s.reporter.ReportError(source, err)
		s.emit(Event{
			Type:     EventSaveFailed,
			State:    state,
			DraftID:  draft.ID,
			Trigger:  trigger,
			Duration: duration,
			Err:      err,
			Error:    err.Error(),
		})
		return err
	}

	now := s.clock.Now()
	s.lastSavedAt = &now
	cleared := false
	if s.revision == revision && s.dirty {
		s.dirty = false
		cleared = true
		s.stopTimerLocked()
	}
	state := s.stateLocked()
	s.mu.Unlock()

	logger.WithField("duration", duration).Info("Draft saved")
	s.emit(Event{
		Type:     EventSaved,
		State:    state,
		DraftID:  draft.ID,
		Trigger:  trigger,
		Duration: duration,
	})
	if cleared {
		s.emit(Event{Type: EventDirtyChanged, State: state})
	}
	return nil
}

// finishSaveLocked clears the in-flight flag and wakes anyone waiting on it
func (s *Session) finishSaveLocked() {
	s.saving = false
	if s.saveDone != nil {
		close(s.saveDone)
		s.saveDone = nil
	}
}

// waitForSave blocks until no save is in flight or ctx is done
func (s *Session) waitForSave(ctx context.Context) error {
	s.mu.Lock()
	done := s.saveDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush saves pending changes for a user action. A timer-driven save that
// is already running is waited for, then the draft is saved again only if
// edits remain.
func (s *Session) flush(ctx context.Context) error {
	for {
		err := s.Save(ctx)
		if !errors.Is(err, ErrSaveInProgress) {
			return err
		}
		if err := s.waitForSave(ctx); err != nil {
			return err
		}
	}
}

// startTimerLocked replaces any running timer, so at most one is pending
func (s *Session) startTimerLocked() {
	s.stopTimerLocked()
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// tick re-arms the timer at the fixed interval before saving, then skips the
// save if the previous one has not finished
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = s.clock.AfterFunc(s.interval, func() { s.tick(gen) })
	if s.saving {
		s.mu.Unlock()
		s.logger.Debug("Previous save still running, skipping tick")
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	_ = s.AutoSave(ctx)
}
