package segment

import (
	"errors"
	"math"
	"testing"

	tsimage "titerscope/internal/image"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// disks draws filled circles of value 1 on a zero background.
func disks(width, height int, radius float64, centers ...[2]int) *tsimage.Gray {
	img := tsimage.NewGray(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for _, c := range centers {
				dx, dy := float64(x-c[0]), float64(y-c[1])
				if dx*dx+dy*dy <= radius*radius {
					img.Set(x, y, 1)
				}
			}
		}
	}
	return img
}

// cone builds a distance-like landscape peaking at each center.
func cone(width, height int, radius float64, centers ...[2]int) []float64 {
	out := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for _, c := range centers {
				d := radius - math.Hypot(float64(x-c[0]), float64(y-c[1]))
				if d > out[y*width+x] {
					out[y*width+x] = d
				}
			}
		}
	}
	return out
}

func TestWindowDiameter(t *testing.T) {
	assert.Equal(t, 51, WindowDiameter(50))
	assert.Equal(t, 51, WindowDiameter(51))
	assert.Equal(t, 3, WindowDiameter(2))
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	bad := []Params{
		DefaultParams().WithWidth(1),
		DefaultParams().WithWidth(-4),
		DefaultParams().WithGamma(0),
		DefaultParams().WithSigma(-1),
		DefaultParams().WithOffset(math.NaN()),
		DefaultParams().WithWatershed(-1, 1),
		DefaultParams().WithWatershed(1, 0),
	}
	for _, p := range bad {
		assert.True(t, errors.Is(p.Validate(), ErrInvalidParameter), "%+v", p)
	}
}

func TestThresholdInvariantToAdditiveOffset(t *testing.T) {
	img := disks(64, 64, 6, [2]int{16, 16}, [2]int{40, 44}, [2]int{50, 12})
	for x := 20; x < 36; x++ {
		img.Set(x, 30, 0.75)
	}

	base, err := Threshold(img, 9, 0.003)
	require.NoError(t, err)
	require.NotZero(t, base.Count())

	shifted := img.Clone()
	for i := range shifted.Pix {
		shifted.Pix[i] += 0.25
	}
	moved, err := Threshold(shifted, 9, 0.003)
	require.NoError(t, err)

	assert.True(t, base.Equal(moved), "foreground changed under a uniform intensity shift")
}

func TestThresholdRejectsDegenerateWidth(t *testing.T) {
	_, err := Threshold(tsimage.NewGray(8, 8), 1, 0)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	_, err = Threshold(&tsimage.Gray{}, 9, 0)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestFillHoles(t *testing.T) {
	// A ring with a hollow centre plus a "C" open to the border.
	mask := NewBinary(12, 12)
	for y := 2; y <= 8; y++ {
		for x := 2; x <= 8; x++ {
			if x == 2 || x == 8 || y == 2 || y == 8 {
				mask.Set(x, y, true)
			}
		}
	}
	for y := 0; y < 12; y++ {
		mask.Set(10, y, true)
	}

	filled := FillHoles(mask)
	assert.True(t, filled.At(5, 5), "interior of the ring is filled")
	assert.True(t, filled.At(3, 7))
	assert.False(t, filled.At(0, 0))
	assert.False(t, filled.At(11, 5), "background beyond the wall touches the border")
	assert.Equal(t, 7*7+12, filled.Count(), "ring area plus wall")
	assert.False(t, mask.At(5, 5), "input is not modified")

	assert.True(t, FillHoles(filled).Equal(filled), "hole filling is idempotent")
}

func TestWatershedSingleBlob(t *testing.T) {
	w, h := 40, 40
	labels := Watershed(cone(w, h, 10, [2]int{20, 20}), w, h, 1, 1)
	assert.Equal(t, 1, labels.Count)
	assert.Equal(t, NotDegenerate, labels.Degenerate)
	assert.Equal(t, 1, labels.LabelAt(20, 20))
	assert.Equal(t, 0, labels.LabelAt(0, 0))
}

func TestWatershedTwoSeparateBlobs(t *testing.T) {
	w, h := 60, 30
	labels := Watershed(cone(w, h, 8, [2]int{12, 15}, [2]int{45, 15}), w, h, 1, 1)
	require.Equal(t, 2, labels.Count)
	assert.Equal(t, 1, labels.LabelAt(12, 15), "labels follow raster order")
	assert.Equal(t, 2, labels.LabelAt(45, 15))

	areas := labels.Areas()
	assert.Equal(t, areas[0], areas[1])
}

func TestWatershedSplitsTouchingBlobs(t *testing.T) {
	w, h := 60, 40
	dist := cone(w, h, 12, [2]int{20, 20}, [2]int{38, 20})
	labels := Watershed(dist, w, h, 1, 1)
	require.Equal(t, 2, labels.Count)
	assert.NotEqual(t, labels.LabelAt(20, 20), labels.LabelAt(38, 20))
	assert.Equal(t, labels.LabelAt(20, 20), labels.LabelAt(27, 20))
	assert.Equal(t, labels.LabelAt(38, 20), labels.LabelAt(31, 20))
}

func TestWatershedMergesShallowSeeds(t *testing.T) {
	// Two peaks 0.5 apart in height separated by a dip of 0.3: within tolerance.
	w, h := 9, 1
	dist := []float64{1, 2, 3, 3.5, 3.2, 3.4, 2, 1, 0}
	assert.Equal(t, 1, Watershed(dist, w, h, 1, 1).Count)
	assert.Equal(t, 2, Watershed(dist, w, h, 0.1, 1).Count)
}

func TestWatershedPlateau(t *testing.T) {
	w, h := 6, 4
	dist := make([]float64, w*h)
	for i := range dist {
		dist[i] = 2
	}
	labels := Watershed(dist, w, h, 0, 1)
	assert.Equal(t, 1, labels.Count)
}

func TestDistanceMapSeparatesTouchingDisks(t *testing.T) {
	img := disks(80, 50, 15, [2]int{28, 25}, [2]int{52, 25})
	mask := NewBinary(80, 50)
	for i, v := range img.Pix {
		mask.Pix[i] = v > 0
	}

	dist := DistanceMap(mask)
	assert.InDelta(t, 15, dist[25*80+28], 1.5)
	assert.Equal(t, 0.0, dist[0])

	labels := Watershed(dist, 80, 50, 1, 1)
	assert.Equal(t, 2, labels.Count)
}

func TestNucMaskTwoDisks(t *testing.T) {
	img := disks(256, 256, 20, [2]int{60, 60}, [2]int{180, 180})

	labels, err := NucMask(img, DefaultParams().WithWidth(50), nil)
	require.NoError(t, err)
	require.Equal(t, 2, labels.Count)
	assert.Equal(t, NotDegenerate, labels.Degenerate)

	want := math.Pi * 20 * 20
	for i, area := range labels.Areas() {
		assert.InDelta(t, want, float64(area), 0.1*want, "label %d", i+1)
	}
	assert.Equal(t, 1, labels.LabelAt(60, 60))
	assert.Equal(t, 2, labels.LabelAt(180, 180))
	assert.Equal(t, 0, labels.LabelAt(120, 120))
}

func TestNucMaskFromLoadedSource(t *testing.T) {
	img := disks(96, 96, 10, [2]int{30, 30})
	labels, err := NucMaskFromSource(tsimage.Loaded(tsimage.NewGray(96, 96), img).Frame(1),
		DefaultParams().WithWidth(30), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, labels.Count)
}

func TestNucMaskDegenerateMasks(t *testing.T) {
	flat := tsimage.NewGray(32, 32)

	empty, err := NucMask(flat, DefaultParams().WithWidth(10), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, DegenerateEmpty, empty.Degenerate)

	full, err := NucMask(flat, DefaultParams().WithWidth(10).WithOffset(-0.1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, full.Count)
	assert.Equal(t, DegenerateFull, full.Degenerate)
	assert.Equal(t, []int{32 * 32}, full.Areas())
}

func TestNucMaskInvalidInput(t *testing.T) {
	img := disks(32, 32, 5, [2]int{16, 16})

	_, err := NucMask(img, DefaultParams().WithWidth(1), nil)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	_, err = NucMask(nil, DefaultParams(), nil)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	img.Set(0, 0, -1)
	_, err = NucMask(img, DefaultParams().WithWidth(10), nil)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestNormalizeAppliesGamma(t *testing.T) {
	img := tsimage.NewGray(3, 1)
	img.Pix = []float64{0, 0.25, 1}

	out, err := Normalize(img, 0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, out.Pix, 1e-12)

	shifted := tsimage.NewGray(2, 1)
	shifted.Pix = []float64{10, 20}
	out, err = Normalize(shifted, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, out.Pix)
}
