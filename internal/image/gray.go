// Package image provides intensity images, image loading, and mask overlay rendering.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// ErrSizeMismatch is returned when paired channels do not share spatial dimensions.
var ErrSizeMismatch = errors.New("image size mismatch")

// Gray is a single-channel intensity image with non-negative samples stored row-major.
// Samples decoded from files are scaled to [0,1] by the maximum of their color model.
type Gray struct {
	Width  int
	Height int
	Pix    []float64
}

// NewGray creates a zero-filled image.
func NewGray(width, height int) *Gray {
	return &Gray{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the sample at (x, y).
func (g *Gray) At(x, y int) float64 {
	return g.Pix[y*g.Width+x]
}

// Set sets the sample at (x, y).
func (g *Gray) Set(x, y int, v float64) {
	g.Pix[y*g.Width+x] = v
}

// Bounds returns the image rectangle.
func (g *Gray) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// Empty reports whether the image has no samples.
func (g *Gray) Empty() bool {
	return g == nil || g.Width <= 0 || g.Height <= 0 || len(g.Pix) != g.Width*g.Height
}

// SameSize reports whether both images share width and height.
func (g *Gray) SameSize(other *Gray) bool {
	return g.Width == other.Width && g.Height == other.Height
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	out := &Gray{Width: g.Width, Height: g.Height, Pix: make([]float64, len(g.Pix))}
	copy(out.Pix, g.Pix)
	return out
}

// MinMax returns the smallest and largest sample.
func (g *Gray) MinMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// CheckPair verifies that a nuclear and a target channel can be analysed together.
func CheckPair(nuclear, target *Gray) error {
	if nuclear.Empty() || target.Empty() {
		return fmt.Errorf("%w: empty channel", ErrSizeMismatch)
	}
	if !nuclear.SameSize(target) {
		return fmt.Errorf("%w: nuclear %dx%d, target %dx%d",
			ErrSizeMismatch, nuclear.Width, nuclear.Height, target.Width, target.Height)
	}
	return nil
}

// FromImage converts a decoded image to intensities in [0,1].
// Color images are reduced to luma (Rec. 601 weights).
func FromImage(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float64(src.Gray16At(x+b.Min.X, y+b.Min.Y).Y) / 65535.0
			}
		}
	case *image.Gray:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float64(src.GrayAt(x+b.Min.X, y+b.Min.Y).Y) / 255.0
			}
		}
	default:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				r, gg, bb, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
				g.Pix[y*g.Width+x] = (0.299*float64(r) + 0.587*float64(gg) + 0.114*float64(bb)) / 65535.0
			}
		}
	}
	return g
}

// ToImage renders the image as 16-bit gray, stretching min..max to the full range.
func (g *Gray) ToImage() *image.Gray16 {
	out := image.NewGray16(g.Bounds())
	lo, hi := g.MinMax()
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}
	for i, v := range g.Pix {
		out.SetGray16(i%g.Width, i/g.Width, color.Gray16{Y: uint16(math.Round((v - lo) * scale * 65535))})
	}
	return out
}
