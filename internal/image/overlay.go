package image

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"titerscope/pkg/colorutil"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelMap is a read-only view of a labeled mask: 0 is background, n > 0 is object n.
type LabelMap interface {
	Size() (width, height int)
	LabelAt(x, y int) int
}

// BlendMode specifies how label colors are combined with the base image.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	default:
		return "Unknown"
	}
}

// OverlayOptions controls overlay rendering.
type OverlayOptions struct {
	Mode    BlendMode
	Opacity float64 // Fill opacity (0.0 - 1.0)

	// Positive holds the labels scored positive; they are outlined in PositiveColor,
	// every other object in NegativeColor.
	Positive      map[int]bool
	PositiveColor color.RGBA
	NegativeColor color.RGBA

	// Numbers draws label numbers at object centroids.
	Numbers bool
}

// DefaultOverlayOptions returns the options used by the tools and the viewer.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		Mode:          BlendScreen,
		Opacity:       0.35,
		PositiveColor: colorutil.Magenta,
		NegativeColor: colorutil.Cyan,
	}
}

// Overlay renders base as contrast-stretched gray with each labeled object tinted
// in its palette color and outlined.
func Overlay(base *Gray, labels LabelMap, opts OverlayOptions) *image.RGBA {
	w, h := labels.Size()
	result := image.NewRGBA(image.Rect(0, 0, w, h))

	lo, hi := base.MinMax()
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}

	type acc struct{ sx, sy, n float64 }
	centers := map[int]*acc{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var bg color.RGBA
			if x < base.Width && y < base.Height {
				bg = colorutil.Gray((base.At(x, y) - lo) * scale)
			} else {
				bg = colorutil.Black
			}
			label := labels.LabelAt(x, y)
			if label == 0 {
				result.SetRGBA(x, y, bg)
				continue
			}

			if opts.Numbers {
				c := centers[label]
				if c == nil {
					c = &acc{}
					centers[label] = c
				}
				c.sx += float64(x)
				c.sy += float64(y)
				c.n++
			}

			if isBoundary(labels, x, y, w, h, label) {
				if opts.Positive[label] {
					result.SetRGBA(x, y, opts.PositiveColor)
				} else {
					result.SetRGBA(x, y, opts.NegativeColor)
				}
				continue
			}
			result.SetRGBA(x, y, blend(bg, colorutil.LabelColor(label), opts.Mode, opts.Opacity))
		}
	}

	if opts.Numbers {
		d := &font.Drawer{Dst: result, Src: image.NewUniform(colorutil.Yellow), Face: basicfont.Face7x13}
		for label, c := range centers {
			text := strconv.Itoa(label)
			width := d.MeasureString(text).Round()
			d.Dot = fixed.P(int(c.sx/c.n)-width/2, int(c.sy/c.n)+4)
			d.DrawString(text)
		}
	}
	return result
}

// LabelsImage encodes label values directly as 16-bit gray samples.
func LabelsImage(labels LabelMap) *image.Gray16 {
	w, h := labels.Size()
	out := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray16(x, y, color.Gray16{Y: uint16(labels.LabelAt(x, y))})
		}
	}
	return out
}

func isBoundary(labels LabelMap, x, y, w, h, label int) bool {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	return labels.LabelAt(x-1, y) != label || labels.LabelAt(x+1, y) != label ||
		labels.LabelAt(x, y-1) != label || labels.LabelAt(x, y+1) != label
}

// blend performs the blend operation between two opaque colors.
func blend(dst, src color.RGBA, mode BlendMode, opacity float64) color.RGBA {
	sf := [3]float64{float64(src.R) / 255, float64(src.G) / 255, float64(src.B) / 255}
	df := [3]float64{float64(dst.R) / 255, float64(dst.G) / 255, float64(dst.B) / 255}

	var rf [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendMultiply:
			rf[i] = sf[i] * df[i]
		case BlendScreen:
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		default:
			rf[i] = sf[i]
		}
	}

	alpha := clamp(opacity, 0, 1)
	return color.RGBA{
		R: uint8(math.Round(clamp(rf[0]*alpha+df[0]*(1-alpha), 0, 1) * 255)),
		G: uint8(math.Round(clamp(rf[1]*alpha+df[1]*(1-alpha), 0, 1) * 255)),
		B: uint8(math.Round(clamp(rf[2]*alpha+df[2]*(1-alpha), 0, 1) * 255)),
		A: 255,
	}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
