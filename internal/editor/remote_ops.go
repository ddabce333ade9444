package editor

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/observer"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/remote"
	"go-image-editor/internal/urlchain"
	"go-image-editor/pkg/models"
)

const timeoutMessage = "Processing timeout, try again"

// Enhance submits an enhancement of the working image
func (s *Session) Enhance(ctx context.Context, auto bool) (models.SessionSnapshot, error) {
	label := "Enhance"
	if auto {
		label = "Auto enhance"
	}
	return s.submit(ctx, models.KindEnhancement, label,
		map[string]interface{}{"auto": auto}, &models.Params{Auto: auto})
}

// RemoveBackground submits a background removal of the working image
func (s *Session) RemoveBackground(ctx context.Context) (models.SessionSnapshot, error) {
	return s.submit(ctx, models.KindBackgroundRemoval, "Remove background", nil, nil)
}

func (s *Session) submit(ctx context.Context, kind models.Kind, label string, options map[string]interface{}, params *models.Params) (models.SessionSnapshot, error) {
	s.mu.Lock()
	if err := s.usableLocked(true); err != nil {
		s.mu.Unlock()
		return models.SessionSnapshot{}, err
	}
	token, err := s.acquireLocked()
	if err != nil {
		s.mu.Unlock()
		return models.SessionSnapshot{}, err
	}
	input := s.image.CurrentURL
	entry := s.hist.Append(models.Transformation{
		Kind:   kind,
		Label:  label,
		State:  models.StateProcessing,
		Params: params,
	})
	s.publishLocked(s.entryEvent(observer.OperationStarted, entry, nil))
	s.mu.Unlock()

	// The gate is released on every exit path, panics included.
	defer s.release(token)

	log := s.log.WithFields(logrus.Fields{"transformation_id": entry.ID, "kind": kind})
	log.Info("Submitting transformation")

	res, err := s.remote.Submit(ctx, remote.SubmitRequest{Kind: kind, ImageURL: input, Options: options})

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.releaseLocked(token)

	if err := s.applySubmissionLocked(entry, res, err); err != nil {
		return models.SessionSnapshot{}, err
	}
	// the returned snapshot must already show the gate this call held as open
	s.releaseLocked(token)
	return s.snapshotLocked(), nil
}

// applySubmissionLocked re-reads history, since reset or a new image may have
// removed the entry while the submit was in flight.
func (s *Session) applySubmissionLocked(entry models.Transformation, res *remote.SubmitResult, err error) error {
	log := s.log.WithFields(logrus.Fields{"transformation_id": entry.ID, "kind": entry.Kind})

	if s.closed || s.hist.IndexOf(entry.ID) < 0 {
		log.Info("Discarding submit result for a removed entry")
		return apperrors.NewCancellationError("operation superseded", err)
	}

	if err != nil {
		if apperrors.IsCancellation(err) {
			s.hist.FailProcessing(entry.ID, "cancelled")
			s.publishLocked(s.entryEvent(observer.OperationFailed, entry, err))
			s.touchLocked()
			return err
		}
		return s.failEntryLocked(entry, apperrors.NewSubmissionError(userMessage(err), err))
	}

	switch {
	case res == nil || !res.Success:
		msg := "processing service rejected the request"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		return s.failEntryLocked(entry, apperrors.NewSubmissionError(msg, nil))
	case res.Synchronous && res.ResultURL == "":
		return s.failEntryLocked(entry, apperrors.NewSubmissionError("processing service returned no result", nil))
	case res.Synchronous && urlchain.IsAsync(res.ResultURL):
		log.WithField("result_url", res.ResultURL).Info("Synchronous result still needs processing, waiting for confirmation")
		s.startPollLocked(poller.Target{
			PollTarget:       res.ResultURL,
			ResultURL:        res.ResultURL,
			TransformationID: entry.ID,
			Kind:             entry.Kind,
		})
		s.notifyLocked(notify.SeverityInfo, entry.Label+" is processing")
		return nil
	case res.Synchronous:
		log.Info("Transformation completed synchronously")
		s.completeLocked(entry.ID, res.ResultURL)
		return nil
	case res.PollTarget() == "":
		return s.failEntryLocked(entry, apperrors.NewSubmissionError("processing service returned no status target", nil))
	}

	log.WithField("poll_target", res.PollTarget()).Info("Transformation accepted for asynchronous processing")
	s.startPollLocked(poller.Target{
		PollTarget:       res.PollTarget(),
		ResultURL:        res.ResultURL,
		TransformationID: entry.ID,
		Kind:             entry.Kind,
	})
	s.notifyLocked(notify.SeverityInfo, entry.Label+" is processing")
	return nil
}

// completeLocked commits a result: the entry, orphaned processing entries and
// the working URL change together. Results for entries undone past are
// recorded but do not move the working URL.
func (s *Session) completeLocked(id, resultURL string) bool {
	idx := s.hist.IndexOf(id)
	if idx < 0 {
		return false
	}
	s.hist.Update(id, models.CompletedPatch(resultURL))
	if cleared := s.hist.ClearOrphanedProcessing(id, "superseded"); len(cleared) > 0 {
		s.log.WithField("cleared", cleared).Warn("Cleared orphaned processing entries")
	}
	if idx <= s.hist.Cursor() {
		s.image.CurrentURL = s.urlAtCursorLocked()
		s.image.HasError = false
	}
	s.touchLocked()

	entry, _ := s.hist.At(idx)
	s.publishLocked(s.entryEvent(observer.OperationCompleted, entry, nil))
	if entry.Kind.IsRemote() {
		s.notifyLocked(notify.SeveritySuccess, entry.Label+" applied")
		s.verifyLocked(entry)
	}
	return true
}

// failEntryLocked rolls the entry back to failed and emits the single
// user-facing error for it.
func (s *Session) failEntryLocked(entry models.Transformation, err error) error {
	if err == nil {
		err = apperrors.NewInternalError("processing failed", nil)
	}
	s.hist.FailProcessing(entry.ID, userMessage(err))
	s.touchLocked()
	s.publishLocked(s.entryEvent(observer.OperationFailed, entry, err))

	msg := entry.Label + " failed: " + userMessage(err)
	if apperrors.IsType(err, apperrors.ErrorTypeTimeout) {
		msg = timeoutMessage
	}
	s.notifyLocked(notify.SeverityError, msg)
	s.log.WithError(err).WithField("transformation_id", entry.ID).Warn("Transformation failed")
	return err
}

func (s *Session) verifyLocked(entry models.Transformation) {
	if s.verifier == nil || entry.ResultURL == "" {
		return
	}
	id, original, result := entry.ID, s.image.OriginalURL, entry.ResultURL
	go s.verifier.Verify(id, original, result, func(report models.VerificationReport) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.hist.IndexOf(id) < 0 {
			return
		}
		s.verifications[id] = report
	})
}

// startPollLocked replaces any running poll session with a new one
func (s *Session) startPollLocked(target poller.Target) {
	s.cancelPollLocked("superseded")
	s.poll = s.polls.Start(target, s.onPollDone)
	s.touchLocked()
	s.publishLocked(observer.EditorEvent{
		EventType:        observer.PollStarted,
		TransformationID: target.TransformationID,
		Kind:             string(target.Kind),
		ImageURL:         target.PollTarget,
		Success:          true,
	})
}

// cancelPollLocked stops the running poll session and releases whatever it
// held: the processing entry or the loading flag.
func (s *Session) cancelPollLocked(reason string) {
	ps := s.poll
	if ps == nil {
		return
	}
	s.poll = nil
	ps.Cancel()

	t := ps.Target()
	if t.TransformationID == "" {
		s.image.IsLoading = false
	} else if s.hist.FailProcessing(t.TransformationID, reason) {
		if e, ok := s.hist.Get(t.TransformationID); ok {
			s.publishLocked(s.entryEvent(observer.OperationFailed, e,
				apperrors.NewCancellationError(reason, nil)))
		}
	}
	s.touchLocked()
	s.log.WithFields(logrus.Fields{"poll_session": ps.ID(), "reason": reason}).Debug("Poll session cancelled")
}

func (s *Session) onPollDone(ps *poller.Session, r poller.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poll != ps {
		s.log.WithFields(logrus.Fields{"poll_session": ps.ID(), "outcome": r.Outcome}).
			Debug("Ignoring result of a superseded poll session")
		return
	}
	s.poll = nil
	s.touchLocked()
	s.publishLocked(observer.EditorEvent{
		EventType:        observer.PollFinished,
		TransformationID: r.Target.TransformationID,
		Kind:             string(r.Target.Kind),
		ImageURL:         r.URL,
		Success:          r.Outcome == poller.OutcomeReady,
		Metadata:         map[string]interface{}{"outcome": string(r.Outcome), "attempts": r.Attempts},
	})

	if r.Target.TransformationID == "" {
		s.finishConfirmationLocked(r)
		return
	}

	entry, ok := s.hist.Get(r.Target.TransformationID)
	if !ok || !entry.Processing() {
		return
	}
	switch r.Outcome {
	case poller.OutcomeReady:
		s.completeLocked(entry.ID, r.URL)
	case poller.OutcomeCancelled:
		s.hist.FailProcessing(entry.ID, "cancelled")
	default:
		s.failEntryLocked(entry, r.Err)
	}
}

// finishConfirmationLocked resolves a poll for an externally supplied image
func (s *Session) finishConfirmationLocked(r poller.Result) {
	s.image.IsLoading = false
	switch r.Outcome {
	case poller.OutcomeReady:
		s.image.HasError = false
		if s.hist.Cursor() < 0 {
			s.image.CurrentURL = r.URL
		}
	case poller.OutcomeCancelled:
	case poller.OutcomeTimeout:
		s.image.HasError = true
		s.notifyLocked(notify.SeverityError, timeoutMessage)
	default:
		s.image.HasError = true
		s.notifyLocked(notify.SeverityError, "Image could not be prepared: "+userMessage(r.Err))
	}
}
