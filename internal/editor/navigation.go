package editor

import (
	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/observer"
	"go-image-editor/pkg/models"
)

// Undo moves the cursor back one entry. It is refused while a submit is in
// flight. Undoing an entry that is still processing cancels its poll session
// and fails the entry, so a late completion cannot move the working URL.
func (s *Session) Undo() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(true); err != nil {
		return models.SessionSnapshot{}, err
	}
	if s.op != 0 {
		return models.SessionSnapshot{}, s.busyLocked()
	}
	if !s.hist.CanUndo() {
		return models.SessionSnapshot{}, apperrors.NewValidationError("nothing to undo", nil)
	}

	s.cancelPollLocked("cancelled")
	s.failProcessingLocked("cancelled")
	s.hist.Undo()
	s.moveLocked("undo")
	return s.snapshotLocked(), nil
}

// Redo moves the cursor forward one entry
func (s *Session) Redo() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(true); err != nil {
		return models.SessionSnapshot{}, err
	}
	if s.op != 0 || s.hist.AnyProcessing() {
		return models.SessionSnapshot{}, s.busyLocked()
	}
	if !s.hist.CanRedo() {
		return models.SessionSnapshot{}, apperrors.NewValidationError("nothing to redo", nil)
	}

	s.cancelPollLocked("cancelled")
	s.hist.Redo()
	s.moveLocked("redo")
	return s.snapshotLocked(), nil
}

// Reset is always allowed. It force-clears the gate, cancels polling and
// restores the original image.
func (s *Session) Reset() (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(true); err != nil {
		return models.SessionSnapshot{}, err
	}

	s.cancelPollLocked("reset")
	s.op = 0
	s.hist.Reset()
	s.verifications = make(map[string]models.VerificationReport)
	s.image.CurrentURL = s.image.OriginalURL
	s.image.IsLoading = false
	s.image.HasError = false
	s.touchLocked()

	s.publishLocked(observer.EditorEvent{
		EventType: observer.SessionReset,
		ImageURL:  s.image.OriginalURL,
		Success:   true,
		Metadata:  map[string]interface{}{"reason": "reset"},
	})
	s.notifyLocked(notify.SeverityInfo, "Image reset to original")
	s.log.Info("Session reset")
	return s.snapshotLocked(), nil
}

func (s *Session) failProcessingLocked(reason string) {
	for _, e := range s.hist.Entries() {
		if e.Processing() {
			s.hist.FailProcessing(e.ID, reason)
		}
	}
}

func (s *Session) moveLocked(direction string) {
	s.image.CurrentURL = s.urlAtCursorLocked()
	s.image.HasError = false
	s.touchLocked()
	s.publishLocked(observer.EditorEvent{
		EventType: observer.HistoryMoved,
		ImageURL:  s.image.CurrentURL,
		Success:   true,
		Metadata:  map[string]interface{}{"direction": direction, "cursor": s.hist.Cursor()},
	})
}
