package image

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"titerscope/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gridLabels struct {
	w, h int
	pix  []int
}

func (g gridLabels) Size() (int, int)     { return g.w, g.h }
func (g gridLabels) LabelAt(x, y int) int { return g.pix[y*g.w+x] }

func TestSourceResolve(t *testing.T) {
	a, b := NewGray(4, 3), NewGray(4, 3)
	b.Set(1, 1, 0.5)

	got, err := Loaded(a, b).Frame(1).Resolve()
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.At(1, 1))

	_, err = Loaded(a).Frame(2).Resolve()
	assert.True(t, errors.Is(err, ErrNoFrame))

	_, err = Path("whatever.tif").Frame(1).Resolve()
	assert.True(t, errors.Is(err, ErrNoFrame))
	assert.True(t, Path("x.tif").IsPath())
	assert.False(t, Loaded(a).IsPath())
}

func TestResolvePairSizeMismatch(t *testing.T) {
	_, _, err := ResolvePair(Loaded(NewGray(4, 4)), Loaded(NewGray(5, 4)))
	assert.True(t, errors.Is(err, ErrSizeMismatch))

	nuc, tgt, err := ResolvePair(Loaded(NewGray(4, 4)), Loaded(NewGray(4, 4)))
	require.NoError(t, err)
	assert.True(t, nuc.SameSize(tgt))
}

func TestLoadPNGRoundTrip(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 3, 2))
	src.SetGray16(2, 1, color.Gray16{Y: 65535})
	src.SetGray16(0, 0, color.Gray16{Y: 32768})

	path := filepath.Join(t.TempDir(), "nested", "nuclei.png")
	require.NoError(t, SavePNG(path, src))

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.InDelta(t, 1.0, g.At(2, 1), 1e-9)
	assert.InDelta(t, 0.5, g.At(0, 0), 1e-4)
	assert.Equal(t, 0.0, g.At(1, 0))

	_, err = Load(filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)
}

func TestFromImageRGBUsesLuma(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	assert.InDelta(t, 1.0, FromImage(src).At(0, 0), 1e-9)
}

func TestOverlayOutlinesObjects(t *testing.T) {
	w, h := 7, 7
	labels := gridLabels{w: w, h: h, pix: make([]int, w*h)}
	for y := 1; y <= 5; y++ {
		for x := 1; x <= 5; x++ {
			labels.pix[y*w+x] = 1
		}
	}
	base := NewGray(w, h)
	base.Set(3, 3, 1)

	opts := DefaultOverlayOptions()
	opts.Positive = map[int]bool{1: true}
	out := Overlay(base, labels, opts)

	assert.Equal(t, colorutil.Black, out.RGBAAt(0, 0), "background keeps the stretched base")
	assert.Equal(t, colorutil.Magenta, out.RGBAAt(1, 1), "edge of a positive object")
	interior := out.RGBAAt(2, 2)
	assert.NotEqual(t, colorutil.Magenta, interior)
	assert.NotEqual(t, colorutil.Black, interior, "interior is tinted with the label color")

	opts.Positive = nil
	assert.Equal(t, colorutil.Cyan, Overlay(base, labels, opts).RGBAAt(5, 5))
}

func TestLabelsImage(t *testing.T) {
	labels := gridLabels{w: 2, h: 1, pix: []int{0, 300}}
	img := LabelsImage(labels)
	assert.Equal(t, uint16(300), img.Gray16At(1, 0).Y)
}
