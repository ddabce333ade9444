package editor

import (
	"math"
	"strconv"
	"strings"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

// CustomAspectRatio selects free-form crops with explicit width and height
const CustomAspectRatio = "custom"

// Default crop base dimensions when the user supplies neither side
const (
	DefaultCropLongSide = 1600
	DefaultCropSquare   = 1080
)

// DeriveCropDimensions turns a crop request into concrete pixel dimensions.
//
// With a ratio num:den and a width, height = round(width*den/num). With only a
// height, width = round(height*num/den). A supplied width wins when both are
// given. With neither, landscape ratios get a 1600 wide base, portrait ratios a
// 1600 high base and square ratios 1080x1080.
func DeriveCropDimensions(spec models.CropSpec) (int, int, error) {
	ratio := strings.TrimSpace(strings.ToLower(spec.AspectRatio))
	if ratio == "" {
		return 0, 0, apperrors.NewValidationError("select an aspect ratio", nil)
	}
	if spec.Width < 0 || spec.Height < 0 {
		return 0, 0, apperrors.NewValidationError("crop dimensions must be positive", nil)
	}

	if ratio == CustomAspectRatio || ratio == "free" {
		if spec.Width <= 0 || spec.Height <= 0 {
			return 0, 0, apperrors.NewValidationError("custom crop needs both width and height", nil)
		}
		return spec.Width, spec.Height, nil
	}

	num, den, err := parseRatio(ratio)
	if err != nil {
		return 0, 0, err
	}

	var w, h int
	switch {
	case spec.Width > 0:
		w = spec.Width
		h = int(math.Round(float64(w) * den / num))
	case spec.Height > 0:
		h = spec.Height
		w = int(math.Round(float64(h) * num / den))
	case num > den:
		w = DefaultCropLongSide
		h = int(math.Round(float64(w) * den / num))
	case num < den:
		h = DefaultCropLongSide
		w = int(math.Round(float64(h) * num / den))
	default:
		w, h = DefaultCropSquare, DefaultCropSquare
	}

	if w <= 0 || h <= 0 {
		return 0, 0, apperrors.NewValidationError("computed crop dimensions must be positive", nil)
	}
	return w, h, nil
}

// parseRatio accepts "16:9", "16/9" and "16x9"
func parseRatio(ratio string) (float64, float64, error) {
	sep := strings.IndexAny(ratio, ":/x")
	if sep <= 0 || sep == len(ratio)-1 {
		return 0, 0, apperrors.NewValidationError("invalid aspect ratio "+strconv.Quote(ratio), nil)
	}
	num, err1 := strconv.ParseFloat(strings.TrimSpace(ratio[:sep]), 64)
	den, err2 := strconv.ParseFloat(strings.TrimSpace(ratio[sep+1:]), 64)
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 || math.IsInf(num, 0) || math.IsInf(den, 0) {
		return 0, 0, apperrors.NewValidationError("invalid aspect ratio "+strconv.Quote(ratio), nil)
	}
	return num, den, nil
}
