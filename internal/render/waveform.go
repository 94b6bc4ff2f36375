// Package render draws a pattern as a time-domain plot: time on the X axis,
// vibration intensity as amplitude around a centre line.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/hperssn/haptics/internal/domain"
)

const (
	sineFrequency     = 80.0 // Hz
	minPixelsPerCycle = 7.0
	amplitudeFraction = 0.45
)

var (
	Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	Ink        = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
)

// Source is what the renderer needs from a pattern.
type Source interface {
	Segments() []domain.Segment
	TotalDuration() float64
}

// Label is the caption shown above the plot.
func Label(totalDuration float64) string {
	return fmt.Sprintf("Pattern (total duration = %.0f ms):", totalDuration*1000)
}

// Waveform renders src into a width x height image. Spaces are drawn as the
// centre line. Vibrations are drawn as an 80 Hz sine when each cycle gets
// more than 7 pixels, otherwise as a filled block.
func Waveform(src Source, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)

	total := src.TotalDuration()
	if total <= 0 || width <= 0 || height <= 0 {
		return img
	}

	pixelsPerSecond := float64(width) / total
	centerY := float64(height) / 2
	maxAmp := float64(height) * amplitudeFraction

	x := 0.0
	prevX, prevY := 0.0, centerY
	for _, seg := range src.Segments() {
		length := seg.Duration * pixelsPerSecond

		if seg.IsSpace() {
			line(img, prevX, prevY, x+length, centerY)
			x += length
			prevX, prevY = x, centerY
			continue
		}

		cycles := math.Round(sineFrequency * seg.Duration)
		if cycles >= 1 && length/cycles > minPixelsPerCycle {
			for px := 0.0; px < length; px++ {
				y := centerY + maxAmp*seg.Intensity*math.Sin(-2*math.Pi*cycles*(px/length))
				line(img, prevX, prevY, x+px, y)
				prevX, prevY = x+px, y
			}
			x += length
			line(img, prevX, prevY, x, centerY)
		} else {
			h := seg.Intensity * maxAmp
			fill(img, x, centerY-h, x+length, centerY+h)
			x += length
		}
		prevX, prevY = x, centerY
	}
	return img
}

func fill(img *image.RGBA, x0, y0, x1, y1 float64) {
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: Ink}, image.Point{}, draw.Src)
}

// line draws a one pixel line using simple DDA stepping.
func line(img *image.RGBA, x0, y0, x1, y1 float64) {
	dx, dy := x1-x0, y1-y0
	steps := math.Max(math.Abs(dx), math.Abs(dy))
	if steps < 1 {
		img.SetRGBA(int(x0), int(y0), Ink)
		return
	}
	for i := 0.0; i <= steps; i++ {
		img.SetRGBA(int(math.Round(x0+dx*i/steps)), int(math.Round(y0+dy*i/steps)), Ink)
	}
}
