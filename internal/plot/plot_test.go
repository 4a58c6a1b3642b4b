package plot

import (
	"bytes"
	"image/png"
	"math"
	"path/filepath"
	"testing"

	"titerscope/internal/doseresponse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcharczuk/go-chart/v2"
)

func sampleFit(t *testing.T) *doseresponse.Fit {
	t.Helper()
	fit, err := doseresponse.FitPoints([]doseresponse.Point{
		{Group: "A0", X: 0, Pos: 1, Neg: 99},
		{Group: "A1", X: 1, Pos: 5, Neg: 95},
		{Group: "A2", X: 10, Pos: 40, Neg: 60},
		{Group: "A3", X: 100, Pos: 95, Neg: 5},
	}, doseresponse.DefaultOptions(), nil)
	require.NoError(t, err)
	return fit
}

func TestRenderPNG(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 640, 400

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleFit(t), opts))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "fit.png")
	require.NoError(t, SavePNG(path, sampleFit(t), DefaultOptions()))
	assert.FileExists(t, path)
}

func TestChartSeries(t *testing.T) {
	ch := Chart(sampleFit(t), DefaultOptions())
	names := map[string]bool{}
	for _, s := range ch.Series {
		names[s.GetName()] = true
	}
	assert.True(t, names["Observed"])
	assert.True(t, names["No dose"], "dose 0 is pinned at the left edge")
	assert.True(t, names["Titer"])

	assert.Equal(t, -1.0, ch.XAxis.Range.GetMin())
	assert.Equal(t, 2.0, ch.XAxis.Range.GetMax())
}

func TestCurveCoversObservedDoses(t *testing.T) {
	fit := sampleFit(t)
	ch := Chart(fit, DefaultOptions())

	curve, ok := ch.Series[0].(chart.ContinuousSeries)
	require.True(t, ok)
	lo, hi := fit.DoseRange()
	assert.InDelta(t, math.Log10(lo), curve.XValues[0], 1e-9)
	assert.InDelta(t, math.Log10(hi), curve.XValues[len(curve.XValues)-1], 1e-9)
	assert.Greater(t, curve.XValues[0], ch.XAxis.Range.GetMin(), "axis keeps room for pinned points")
}

func TestExtrapolatedTiterStaysOnAxis(t *testing.T) {
	opts := doseresponse.DefaultOptions()
	opts.Target = 1e-6
	fit, err := doseresponse.FitPoints([]doseresponse.Point{
		{Group: "A1", X: 1, Pos: 5, Neg: 95},
		{Group: "A2", X: 10, Pos: 40, Neg: 60},
		{Group: "A3", X: 100, Pos: 95, Neg: 5},
	}, opts, nil)
	require.NoError(t, err)
	est, err := fit.Titer()
	require.NoError(t, err)

	ch := Chart(fit, DefaultOptions())
	lo, hi := ch.XAxis.Range.GetMin(), ch.XAxis.Range.GetMax()
	require.Less(t, math.Log10(est.Dose), lo)

	for _, s := range ch.Series {
		switch s := s.(type) {
		case chart.ContinuousSeries:
			for _, x := range s.XValues {
				assert.GreaterOrEqual(t, x, lo, s.Name)
				assert.LessOrEqual(t, x, hi, s.Name)
			}
		case chart.AnnotationSeries:
			for _, a := range s.Annotations {
				assert.GreaterOrEqual(t, a.XValue, lo)
				assert.LessOrEqual(t, a.XValue, hi)
			}
		}
	}
}

func TestDecadeTicks(t *testing.T) {
	ticks := DecadeTicks(-1.5, 2)
	require.Len(t, ticks, 4)
	assert.Equal(t, "0.1", ticks[0].Label)
	assert.Equal(t, "1", ticks[1].Label)
	assert.Equal(t, "100", ticks[3].Label)
}
