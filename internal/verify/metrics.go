package verify

import (
	"image"
	"image/draw"
	"math"

	"gonum.org/v1/gonum/stat"

	"go-image-editor/pkg/models"
)

// Thresholds decide the quality flags of a report
type Thresholds struct {
	MinLuminance   float64 // below: too dark (0..1)
	MaxLuminance   float64 // above: too bright (0..1)
	BlurVariance   float64 // Laplacian variance at or below: blurry
	MinContrastStd float64 // luminance std dev below: low contrast
}

// DefaultThresholds returns the thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinLuminance:   0.15,
		MaxLuminance:   0.92,
		BlurVariance:   100,
		MinContrastStd: 0.05,
	}
}

// Measure computes the raw statistics of img
func Measure(img image.Image) models.ImageMetrics {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	m := models.ImageMetrics{Width: width, Height: height}
	if width == 0 || height == 0 {
		return m
	}

	lum := make([]float64, 0, width*height)
	sat := make([]float64, 0, width*height)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rf, gf, bf := float64(r)/65535.0, float64(g)/65535.0, float64(b)/65535.0
			lum = append(lum, 0.2126*rf+0.7152*gf+0.0722*bf)
			sat = append(sat, saturation(rf, gf, bf))
		}
	}

	m.AvgLuminance, m.LuminanceStd = stat.MeanStdDev(lum, nil)
	if math.IsNaN(m.LuminanceStd) {
		m.LuminanceStd = 0
	}
	m.AvgSaturation = stat.Mean(sat, nil)

	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	m.LaplacianVar = laplacianVariance(gray)
	return m
}

// Assess derives quality flags from metrics
func Assess(m models.ImageMetrics, t Thresholds) models.Quality {
	q := models.Quality{
		TooDark:     m.AvgLuminance < t.MinLuminance,
		TooBright:   m.AvgLuminance > t.MaxLuminance,
		Blurry:      m.LaplacianVar <= t.BlurVariance,
		LowContrast: m.LuminanceStd < t.MinContrastStd,
	}
	q.Readable = m.Width > 0 && m.Height > 0 && !q.TooDark && !q.TooBright && !q.LowContrast
	return q
}

// laplacianVariance applies the kernel [0 1 0; 1 -4 1; 0 1 0]
func laplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := make([]float64, 0, (width-2)*(height-2))
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// saturation is the HSV saturation of a normalized RGB triple
func saturation(r, g, b float64) float64 {
	maxVal := math.Max(r, math.Max(g, b))
	minVal := math.Min(r, math.Min(g, b))
	if maxVal == 0 {
		return 0
	}
	return (maxVal - minVal) / maxVal
}
