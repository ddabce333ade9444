package verify

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniform(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func checkerboard(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestMeasure_Uniform(t *testing.T) {
	m := Measure(uniform(10, 8, color.RGBA{R: 128, G: 128, B: 128, A: 255}))

	assert.Equal(t, 10, m.Width)
	assert.Equal(t, 8, m.Height)
	assert.InDelta(t, 0.502, m.AvgLuminance, 0.01)
	assert.InDelta(t, 0, m.LuminanceStd, 1e-9)
	assert.InDelta(t, 0, m.LaplacianVar, 1e-9)
	assert.InDelta(t, 0, m.AvgSaturation, 1e-9)
}

func TestMeasure_Checkerboard(t *testing.T) {
	m := Measure(checkerboard(16, 16))

	assert.InDelta(t, 0.5, m.AvgLuminance, 0.01)
	assert.Greater(t, m.LuminanceStd, 0.4)
	assert.Greater(t, m.LaplacianVar, 1000.0)
}

func TestMeasure_Saturation(t *testing.T) {
	m := Measure(uniform(4, 4, color.RGBA{R: 255, A: 255}))
	assert.InDelta(t, 1, m.AvgSaturation, 1e-9)
}

func TestMeasure_Empty(t *testing.T) {
	m := Measure(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Zero(t, m.Width)
	assert.False(t, Assess(m, DefaultThresholds()).Readable)
}

func TestAssess(t *testing.T) {
	th := DefaultThresholds()

	dark := Assess(Measure(uniform(8, 8, color.Black)), th)
	assert.True(t, dark.TooDark)
	assert.False(t, dark.Readable)

	bright := Assess(Measure(uniform(8, 8, color.White)), th)
	assert.True(t, bright.TooBright)
	assert.False(t, bright.Readable)

	flat := Assess(Measure(uniform(8, 8, color.RGBA{R: 128, G: 128, B: 128, A: 255})), th)
	assert.True(t, flat.LowContrast)
	assert.True(t, flat.Blurry)

	sharp := Assess(Measure(checkerboard(8, 8)), th)
	assert.True(t, sharp.Readable)
	assert.False(t, sharp.Blurry)
}
