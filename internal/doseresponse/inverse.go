package doseresponse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Estimate is an inverse prediction: the dose at which the fitted response
// reaches Target, with a confidence interval from the delta method on log dose.
type Estimate struct {
	Target float64 `json:"target"`
	Dose   float64 `json:"dose"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	// LogSE is the standard error of log(Dose).
	LogSE float64 `json:"log_se"`
}

// InverseDose returns the dose at which the fitted response equals target.
func (f *Fit) InverseDose(target float64) (Estimate, error) {
	if !(target > 0 && target < 1) {
		return Estimate{}, fmt.Errorf("%w: target %v outside (0, 1)", ErrInvalidParameter, target)
	}
	if f.b1 == 0 || math.Abs(f.b1) < 1e-12 {
		return Estimate{}, ErrFlatResponse
	}

	logd := (f.opts.Link.eta(target) - f.b0) / f.b1
	grad := mat.NewVecDense(2, []float64{-1 / f.b1, -logd / f.b1})
	se := math.Sqrt(math.Max(mat.Inner(grad, f.cov, grad), 0))

	z := distuv.UnitNormal.Quantile(1 - (1-f.opts.Confidence)/2)
	return Estimate{
		Target: target,
		Dose:   math.Exp(logd),
		Lower:  math.Exp(logd - z*se),
		Upper:  math.Exp(logd + z*se),
		LogSE:  se,
	}, nil
}

// Titer returns the inverse prediction at the configured target fraction.
func (f *Fit) Titer() (Estimate, error) {
	return f.InverseDose(f.opts.Target)
}

// Summary is the serialisable result of a fit.
type Summary struct {
	Link         string   `json:"link"`
	Intercept    float64  `json:"intercept"`
	Slope        float64  `json:"slope"`
	Deviance     float64  `json:"deviance"`
	NullDeviance float64  `json:"null_deviance"`
	Iterations   int      `json:"iterations"`
	Converged    bool     `json:"converged"`
	Confidence   float64  `json:"confidence"`
	Titer        Estimate `json:"titer"`
	Points       []Point  `json:"points"`
}

// Summary collects the coefficients and titer estimate. Points without a
// dose are reported with x 0.
func (f *Fit) Summary() (Summary, error) {
	est, err := f.Titer()
	if err != nil {
		return Summary{}, err
	}
	points := f.Points()
	for i := range points {
		if math.IsNaN(points[i].X) {
			points[i].X = 0
		}
	}
	return Summary{
		Link:         f.opts.Link.String(),
		Intercept:    f.b0,
		Slope:        f.b1,
		Deviance:     f.deviance,
		NullDeviance: f.nullDev,
		Iterations:   f.iterations,
		Converged:    f.converged,
		Confidence:   f.opts.Confidence,
		Titer:        est,
		Points:       points,
	}, nil
}
