// Package colorutil provides shared color utilities for overlays and plots.
package colorutil

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors used throughout the application.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.50776405003785

// LabelColor returns a stable, saturated color for an object label.
// Label 0 (background) is black.
func LabelColor(label int) color.RGBA {
	if label <= 0 {
		return Black
	}
	hue := math.Mod(float64(label)*goldenAngle, 360)
	// Alternate value so adjacent labels with close hues stay distinguishable.
	val := 0.95
	if label%2 == 0 {
		val = 0.75
	}
	c := colorful.Hsv(hue, 0.85, val).Clamped()
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Gray returns an opaque gray for an intensity in [0,1]; values outside are clamped.
func Gray(v float64) color.RGBA {
	g := uint8(math.Round(clamp01(v) * 255))
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// Hex parses a "#rrggbb" string, returning fallback if it is malformed.
func Hex(s string, fallback color.RGBA) color.RGBA {
	c, err := colorful.Hex(s)
	if err != nil {
		return fallback
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
