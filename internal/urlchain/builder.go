package urlchain

import (
	"strconv"

	"go-image-editor/pkg/models"
)

// progressiveMarker is appended to every composed URL
var progressiveMarker = Fragment{Key: KeyProgressive, Value: "true"}

// Build derives the working URL from original and every completed entry.
func Build(original string, entries []models.Transformation) string {
	return BuildUpTo(original, entries, len(entries)-1)
}

// BuildUpTo derives the working URL from original and the completed entries with
// index <= upto. It returns original unchanged when nothing applies. The result
// depends only on its arguments.
func BuildUpTo(original string, entries []models.Transformation, upto int) string {
	if upto >= len(entries) {
		upto = len(entries) - 1
	}

	applied := false
	for i := 0; i <= upto; i++ {
		if entries[i].Completed() {
			applied = true
			break
		}
	}
	if !applied {
		return original
	}

	root, err := Split(original)
	if err != nil {
		return original
	}
	base := root.Base
	frags := StripSideChannel(root.Fragments)

	for i := 0; i <= upto; i++ {
		e := entries[i]
		if !e.Completed() {
			continue
		}
		if e.ResultURL != "" {
			if p, err := Split(e.ResultURL); err == nil {
				if p.Base != base {
					// The service produced a new asset with earlier edits baked in.
					base = p.Base
					frags = StripSideChannel(p.Fragments)
					continue
				}
				frags = append(frags, StripSideChannel(p.Fragments)...)
				continue
			}
		}
		frags = append(frags, Synthesize(e)...)
	}

	return Render(base, append(Merge(frags), progressiveMarker))
}

// Compose applies extra fragments on top of current, the way client-side edits do.
func Compose(current string, extra ...Fragment) string {
	p, err := Split(current)
	if err != nil {
		return current
	}
	return Render(p.Base, append(Merge(StripSideChannel(p.Fragments), extra), progressiveMarker))
}

// Synthesize rebuilds the fragments of an entry from its params.
func Synthesize(e models.Transformation) []Fragment {
	p := e.Params
	if p == nil {
		p = &models.Params{}
	}
	switch e.Kind {
	case models.KindRotate:
		if p.Degrees%360 == 0 {
			return []Fragment{{Key: KeyRotation}}
		}
		return []Fragment{{Key: KeyRotation, Value: strconv.Itoa(p.Degrees)}}
	case models.KindFlip:
		return []Fragment{{Key: KeyFlip, Value: string(p.Flip)}}
	case models.KindCrop:
		if p.Width <= 0 || p.Height <= 0 {
			return nil
		}
		return []Fragment{
			{Key: KeyWidth, Value: strconv.Itoa(p.Width)},
			{Key: KeyHeight, Value: strconv.Itoa(p.Height)},
			{Key: KeyCropMode, Value: "force"},
		}
	case models.KindQuality:
		if p.Quality <= 0 {
			return nil
		}
		return []Fragment{{Key: KeyQuality, Value: strconv.Itoa(p.Quality)}}
	case models.KindFormat:
		if p.Format == "" {
			return nil
		}
		return []Fragment{{Key: KeyFormat, Value: p.Format}}
	case models.KindBackgroundRemoval:
		return []Fragment{{Key: KeyEffect, Value: EffectBackgroundRemoval}}
	case models.KindEnhancement:
		return []Fragment{{Key: KeyEffect, Value: EffectRetouch}}
	}
	return nil
}
