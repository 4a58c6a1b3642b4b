package doseresponse

import (
	"errors"
	"math"
	"testing"

	"titerscope/internal/tally"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generated builds noise-free counts from response(dose) with n objects per dose.
func generated(doses []float64, n int, response func(float64) float64) []Point {
	points := make([]Point, len(doses))
	for i, d := range doses {
		pos := int(math.Round(float64(n) * response(d)))
		points[i] = Point{X: d, Pos: pos, Neg: n - pos}
	}
	return points
}

func TestFitRecoversSingleHitTiter(t *testing.T) {
	const titer = 2.5
	points := generated([]float64{0.25, 0.5, 1, 2.5, 5, 10}, 100000, func(d float64) float64 {
		return 1 - math.Exp(-d/titer)
	})
	fit, err := FitPoints(points, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.True(t, fit.Converged())

	_, slope := fit.Coefficients()
	assert.InDelta(t, 1.0, slope, 0.01)

	est, err := fit.Titer()
	require.NoError(t, err)
	assert.InEpsilon(t, titer, est.Dose, 0.05)
	assert.Less(t, est.Lower, est.Dose)
	assert.Greater(t, est.Upper, est.Dose)
	assert.InDelta(t, 1-math.Exp(-1), est.Target, 1e-15)
}

func TestFitRecoversLogitMidpoint(t *testing.T) {
	const ec50 = 8.0
	points := generated([]float64{1, 2, 4, 8, 16, 32, 64}, 50000, func(d float64) float64 {
		return 1 / (1 + math.Pow(ec50/d, 1.5))
	})
	opts := DefaultOptions()
	opts.Link = Logit
	opts.Target = 0.5
	fit, err := FitPoints(points, opts, nil)
	require.NoError(t, err)

	_, slope := fit.Coefficients()
	assert.InDelta(t, 1.5, slope, 0.02)

	est, err := fit.Titer()
	require.NoError(t, err)
	assert.InEpsilon(t, ec50, est.Dose, 0.05)
}

func TestFitThreeDoseScenario(t *testing.T) {
	points := []Point{
		{X: 1, Pos: 5, Neg: 95},
		{X: 10, Pos: 40, Neg: 60},
		{X: 100, Pos: 95, Neg: 5},
	}
	fit, err := FitPoints(points, DefaultOptions(), nil)
	require.NoError(t, err)

	est, err := fit.Titer()
	require.NoError(t, err)
	assert.Greater(t, est.Dose, 1.0)
	assert.Less(t, est.Dose, 100.0)
	assert.True(t, est.Lower < est.Dose && est.Dose < est.Upper)

	pred := fit.Predict([]float64{1, 10, 100})
	assert.True(t, pred[0] < pred[1] && pred[1] < pred[2], "monotone increasing")
}

func TestFitAggregateKeepsNonEvaluablePoints(t *testing.T) {
	res := &tally.Result{GroupKey: "well", Rows: []tally.Row{
		{Group: "A1", X: 0, HasX: true, Pos: 0, Neg: 50},
		{Group: "A2", X: 1, HasX: true, Pos: 5, Neg: 95},
		{Group: "A3", X: 10, HasX: true, Pos: 40, Neg: 60},
		{Group: "A4", X: 100, HasX: true, Pos: 95, Neg: 5},
		{Group: "A5", Pos: 3, Neg: 3},
	}}
	fit, err := FitAggregate(res, DefaultOptions(), nil)
	require.NoError(t, err)

	points := fit.Points()
	require.Len(t, points, 5)
	assert.False(t, points[0].Evaluable())
	assert.False(t, points[4].Evaluable())
	assert.True(t, math.IsNaN(points[4].X))

	lo, hi := fit.DoseRange()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 100.0, hi)

	summary, err := fit.Summary()
	require.NoError(t, err)
	assert.Equal(t, "cloglog", summary.Link)
	assert.Equal(t, 0.0, summary.Points[4].X)
}

func TestFitHandlesZeroAndOneFractions(t *testing.T) {
	points := []Point{
		{X: 0.01, Pos: 0, Neg: 100},
		{X: 0.1, Pos: 8, Neg: 92},
		{X: 1, Pos: 60, Neg: 40},
		{X: 100, Pos: 100, Neg: 0},
	}
	fit, err := FitPoints(points, DefaultOptions(), nil)
	require.NoError(t, err)
	est, err := fit.Titer()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(est.Dose) || math.IsInf(est.Dose, 0))
	assert.False(t, math.IsInf(est.Upper, 0))
}

func TestFitErrors(t *testing.T) {
	_, err := FitPoints([]Point{{X: 0, Pos: 1, Neg: 1}, {X: -1, Pos: 2, Neg: 1}}, DefaultOptions(), nil)
	assert.True(t, errors.Is(err, ErrNoPositiveDose))

	_, err = FitPoints([]Point{{X: 1, Pos: 1, Neg: 1}, {X: 1, Pos: 2, Neg: 1}}, DefaultOptions(), nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = FitPoints([]Point{{X: 1}, {X: 2}}, DefaultOptions(), nil)
	assert.True(t, errors.Is(err, ErrInsufficientData), "zero total count")

	opts := DefaultOptions()
	opts.Confidence = 1
	_, err = FitPoints([]Point{{X: 1, Pos: 1, Neg: 1}, {X: 2, Pos: 2, Neg: 1}}, opts, nil)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestInverseDoseValidation(t *testing.T) {
	fit, err := FitPoints([]Point{{X: 1, Pos: 5, Neg: 95}, {X: 10, Pos: 40, Neg: 60}, {X: 100, Pos: 95, Neg: 5}}, DefaultOptions(), nil)
	require.NoError(t, err)

	_, err = fit.InverseDose(1)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = fit.InverseDose(0)
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	low, err := fit.InverseDose(0.2)
	require.NoError(t, err)
	high, err := fit.InverseDose(0.8)
	require.NoError(t, err)
	assert.Less(t, low.Dose, high.Dose)
}

func TestFlatResponse(t *testing.T) {
	points := generated([]float64{1, 10, 100}, 1000, func(float64) float64 { return 0.3 })
	fit, err := FitPoints(points, DefaultOptions(), nil)
	require.NoError(t, err)
	_, err = fit.Titer()
	assert.True(t, errors.Is(err, ErrFlatResponse))
}

func TestPredictNonPositiveDose(t *testing.T) {
	fit, err := FitPoints([]Point{{X: 1, Pos: 5, Neg: 95}, {X: 10, Pos: 40, Neg: 60}}, DefaultOptions(), nil)
	require.NoError(t, err)
	pred := fit.Predict([]float64{0, -1, 1})
	assert.True(t, math.IsNaN(pred[0]))
	assert.True(t, math.IsNaN(pred[1]))
	assert.InDelta(t, 0.05, pred[2], 1e-6, "two points are fitted exactly")
}

func TestLinkRoundTrip(t *testing.T) {
	for _, l := range []Link{CLogLog, Logit} {
		for _, p := range []float64{0.01, 0.3, 0.632, 0.99} {
			assert.InDelta(t, p, l.mu(l.eta(p)), 1e-12, l.String())
		}
		text, err := l.MarshalText()
		require.NoError(t, err)
		var back Link
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, l, back)
	}
	_, err := ParseLink("probit")
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}
