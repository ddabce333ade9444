package editor

import (
	"context"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/observer"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/urlchain"
	"go-image-editor/pkg/models"
)

// LoadImage establishes the base image. The asset id is the session identity:
// loading the same asset again keeps history, a different one resets it. An
// empty asset id falls back to the exact URL. A URL that still needs
// asynchronous processing keeps the image loading until a poll confirms it.
func (s *Session) LoadImage(assetID, imageURL string) (models.SessionSnapshot, error) {
	if s.validator != nil {
		if err := s.validator.ValidateImageURL(imageURL); err != nil {
			return models.SessionSnapshot{}, err
		}
	} else if imageURL == "" {
		return models.SessionSnapshot{}, apperrors.NewValidationError("URL cannot be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(false); err != nil {
		return models.SessionSnapshot{}, err
	}

	identity := assetID
	if identity == "" {
		identity = imageURL
	}
	if identity == s.identity {
		return s.snapshotLocked(), nil
	}

	s.cancelPollLocked("new image loaded")
	s.op = 0
	s.hist.Reset()
	s.verifications = make(map[string]models.VerificationReport)
	s.identity = identity
	s.image = models.WorkingImage{
		OriginalURL: imageURL,
		CurrentURL:  imageURL,
		AssetID:     assetID,
	}
	s.touchLocked()

	s.publishLocked(observer.EditorEvent{
		EventType: observer.SessionReset,
		ImageURL:  imageURL,
		Success:   true,
		Metadata:  map[string]interface{}{"reason": "new_image", "asset_id": assetID},
	})
	s.log.WithField("asset_id", assetID).Info("Base image loaded")

	if urlchain.IsAsync(imageURL) {
		s.image.IsLoading = true
		s.startPollLocked(poller.Target{PollTarget: imageURL, ResultURL: imageURL})
	}
	return s.snapshotLocked(), nil
}

// MarkImageLoading records that the viewer started loading the working URL
func (s *Session) MarkImageLoading() (models.SessionSnapshot, error) {
	return s.markImage(func() {
		s.image.IsLoading = true
		s.image.HasError = false
	})
}

// MarkImageLoaded records that the viewer displayed the working URL. A pending
// confirmation poll keeps ownership of the loading flag.
func (s *Session) MarkImageLoaded() (models.SessionSnapshot, error) {
	return s.markImage(func() {
		if !s.confirmingLocked() {
			s.image.IsLoading = false
		}
		s.image.HasError = false
	})
}

// MarkImageFailed records that the viewer could not display the working URL
func (s *Session) MarkImageFailed() (models.SessionSnapshot, error) {
	return s.markImage(func() {
		if s.confirmingLocked() {
			return
		}
		s.image.IsLoading = false
		s.image.HasError = true
		s.notifyLocked(notify.SeverityError, "Image failed to load")
	})
}

func (s *Session) markImage(apply func()) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(true); err != nil {
		return models.SessionSnapshot{}, err
	}
	apply()
	s.touchLocked()
	return s.snapshotLocked(), nil
}

func (s *Session) confirmingLocked() bool {
	return s.poll != nil && s.poll.Target().TransformationID == ""
}

// Save hands the working URL and the applied transformations to the persister.
// It is gated but does not hold the gate or touch history.
func (s *Session) Save(ctx context.Context, metadata map[string]string) (*models.SaveResult, error) {
	s.mu.Lock()
	if err := s.gatedReadLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.persister == nil {
		s.mu.Unlock()
		return nil, apperrors.NewInternalError("no storage backend configured", nil)
	}
	imageURL := s.image.CurrentURL
	entries := s.hist.CompletedUpToCursor()
	meta := map[string]string{"session_id": s.id}
	if s.image.AssetID != "" {
		meta["asset_id"] = s.image.AssetID
	}
	s.mu.Unlock()

	for k, v := range metadata {
		meta[k] = v
	}

	res, err := s.persister.Persist(ctx, imageURL, entries, meta)
	if err != nil {
		s.reportFailure("Save failed: ", err)
		return nil, err
	}
	s.log.WithField("saved_url", res.SavedURL).Info("Image saved")
	s.notify(notify.SeveritySuccess, "Image saved")
	return res, nil
}

// Download fetches the bytes of the working URL
func (s *Session) Download(ctx context.Context) (*models.ImageData, error) {
	s.mu.Lock()
	if err := s.gatedReadLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.fetcher == nil {
		s.mu.Unlock()
		return nil, apperrors.NewInternalError("no image fetcher configured", nil)
	}
	imageURL := s.image.CurrentURL
	s.mu.Unlock()

	data, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		s.reportFailure("Download failed: ", err)
		return nil, err
	}
	return data, nil
}

func (s *Session) gatedReadLocked() error {
	if err := s.usableLocked(true); err != nil {
		return err
	}
	if !s.gateOpenLocked() {
		return s.busyLocked()
	}
	return nil
}

func (s *Session) notify(severity notify.Severity, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(severity, message)
}

// reportFailure notifies err unless it is a cancellation
func (s *Session) reportFailure(prefix string, err error) {
	if apperrors.IsCancellation(err) {
		return
	}
	s.log.WithError(err).Warn(prefix + userMessage(err))
	s.notify(notify.SeverityError, prefix+userMessage(err))
}
