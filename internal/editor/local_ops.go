package editor

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/notify"
	"go-image-editor/internal/observer"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/urlchain"
	"go-image-editor/pkg/models"
)

// Formats accepted by Format
var Formats = []string{"auto", "jpg", "png", "webp", "avif"}

type localEdit struct {
	label     string
	params    *models.Params
	fragments []urlchain.Fragment
}

// Rotate turns the image by degrees, cumulatively. Degrees must be a non-zero
// multiple of 90.
func (s *Session) Rotate(degrees int) (models.SessionSnapshot, error) {
	if degrees == 0 || degrees%90 != 0 {
		return s.rejectLocal("rotation must be a non-zero multiple of 90 degrees")
	}
	return s.applyLocal(models.KindRotate, func(current string) (localEdit, error) {
		prev := 0
		if v, ok := urlchain.FragmentValue(current, urlchain.KeyRotation); ok {
			prev, _ = strconv.Atoi(v)
		}
		next := ((prev+degrees)%360 + 360) % 360

		frag := urlchain.Fragment{Key: urlchain.KeyRotation, Value: strconv.Itoa(next)}
		if next == 0 {
			frag.Value = ""
		}
		return localEdit{
			label:     fmt.Sprintf("Rotate %d°", degrees),
			params:    &models.Params{Degrees: next},
			fragments: []urlchain.Fragment{frag},
		}, nil
	})
}

// Flip toggles one axis against the current flip state
func (s *Session) Flip(axis models.FlipAxis) (models.SessionSnapshot, error) {
	var label string
	switch axis {
	case models.FlipHorizontal:
		label = "Flip horizontal"
	case models.FlipVertical:
		label = "Flip vertical"
	default:
		return s.rejectLocal("flip axis must be h or v")
	}
	return s.applyLocal(models.KindFlip, func(current string) (localEdit, error) {
		prev, _ := urlchain.FragmentValue(current, urlchain.KeyFlip)
		next := models.FlipAxis(prev).Toggle(axis)
		return localEdit{
			label:     label,
			params:    &models.Params{Flip: next},
			fragments: []urlchain.Fragment{{Key: urlchain.KeyFlip, Value: string(next)}},
		}, nil
	})
}

// Crop forces the image to the derived dimensions
func (s *Session) Crop(spec models.CropSpec) (models.SessionSnapshot, error) {
	w, h, err := DeriveCropDimensions(spec)
	if err != nil {
		s.warn(err)
		return models.SessionSnapshot{}, err
	}
	return s.applyLocal(models.KindCrop, func(string) (localEdit, error) {
		return localEdit{
			label:  fmt.Sprintf("Crop %s (%dx%d)", spec.AspectRatio, w, h),
			params: &models.Params{Width: w, Height: h, AspectRatio: spec.AspectRatio},
			fragments: []urlchain.Fragment{
				{Key: urlchain.KeyWidth, Value: strconv.Itoa(w)},
				{Key: urlchain.KeyHeight, Value: strconv.Itoa(h)},
				{Key: urlchain.KeyCropMode, Value: "force"},
			},
		}, nil
	})
}

// Quality sets the output quality, 1 to 100
func (s *Session) Quality(q int) (models.SessionSnapshot, error) {
	if q < 1 || q > 100 {
		return s.rejectLocal("quality must be between 1 and 100")
	}
	return s.applyLocal(models.KindQuality, func(string) (localEdit, error) {
		return localEdit{
			label:     fmt.Sprintf("Quality %d", q),
			params:    &models.Params{Quality: q},
			fragments: []urlchain.Fragment{{Key: urlchain.KeyQuality, Value: strconv.Itoa(q)}},
		}, nil
	})
}

// Format sets the output format
func (s *Session) Format(format string) (models.SessionSnapshot, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "jpeg" {
		f = "jpg"
	}
	if !validFormat(f) {
		return s.rejectLocal(fmt.Sprintf("format must be one of %s", strings.Join(Formats, ", ")))
	}
	return s.applyLocal(models.KindFormat, func(string) (localEdit, error) {
		return localEdit{
			label:     "Format " + f,
			params:    &models.Params{Format: f},
			fragments: []urlchain.Fragment{{Key: urlchain.KeyFormat, Value: f}},
		}, nil
	})
}

// applyLocal composes a client-side edit onto the working URL. A composed URL
// that still needs asynchronous processing stays processing until a poll
// confirms it.
func (s *Session) applyLocal(kind models.Kind, build func(current string) (localEdit, error)) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(true); err != nil {
		return models.SessionSnapshot{}, err
	}
	token, err := s.acquireLocked()
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	defer s.releaseLocked(token)

	edit, err := build(s.image.CurrentURL)
	if err != nil {
		s.warnLocked(err)
		return models.SessionSnapshot{}, err
	}

	next := urlchain.Compose(s.image.CurrentURL, edit.fragments...)
	entry := s.hist.Append(models.Transformation{
		Kind:   kind,
		Label:  edit.label,
		State:  models.StateProcessing,
		Params: edit.params,
	})
	s.publishLocked(s.entryEvent(observer.OperationStarted, entry, nil))

	if urlchain.IsAsync(next) {
		s.log.WithField("transformation_id", entry.ID).Info("Composed URL needs processing, waiting for confirmation")
		s.startPollLocked(poller.Target{
			PollTarget:       next,
			ResultURL:        next,
			TransformationID: entry.ID,
			Kind:             kind,
		})
		s.notifyLocked(notify.SeverityInfo, edit.label+" is processing")
	} else {
		s.completeLocked(entry.ID, next)
	}
	s.releaseLocked(token)
	return s.snapshotLocked(), nil
}

// rejectLocal reports invalid local input the same way for every client-side edit
func (s *Session) rejectLocal(message string) (models.SessionSnapshot, error) {
	err := apperrors.NewValidationError(message, nil)
	s.warn(err)
	return models.SessionSnapshot{}, err
}

func (s *Session) warn(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnLocked(err)
}

func (s *Session) warnLocked(err error) {
	s.notifyLocked(notify.SeverityWarning, userMessage(err))
}

func validFormat(f string) bool {
	for _, allowed := range Formats {
		if f == allowed {
			return true
		}
	}
	return false
}
