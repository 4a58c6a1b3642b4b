// Package doseresponse fits binomial dose-response curves and inverts them to
// estimate the dose reaching a target response.
package doseresponse

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"titerscope/internal/logger"
	"titerscope/internal/tally"

	"gonum.org/v1/gonum/mat"
)

const component = "doseresponse"

var (
	// ErrNoPositiveDose is returned when no point has a dose above zero.
	ErrNoPositiveDose = errors.New("no positive dose")
	// ErrInsufficientData is returned when the evaluable points cannot identify a slope.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidParameter is returned for malformed options or targets.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrFlatResponse is returned when the fitted slope is zero.
	ErrFlatResponse = errors.New("flat dose response")
	// ErrSingular is returned when the information matrix cannot be inverted.
	ErrSingular = errors.New("singular information matrix")
)

// Options control the fit and the default inverse prediction.
type Options struct {
	Link Link `json:"link"`
	// Target is the response fraction Titer inverts.
	Target float64 `json:"target"`
	// Confidence is the two-sided coverage of estimate intervals.
	Confidence float64 `json:"confidence"`
	Tol        float64 `json:"tol"`
	MaxIter    int     `json:"max_iter"`
}

// DefaultOptions fits a complementary log-log curve and reports the dose where
// 1 - 1/e of cells respond, with 95% bounds.
func DefaultOptions() Options {
	return Options{
		Link:       CLogLog,
		Target:     1 - math.Exp(-1),
		Confidence: 0.95,
		Tol:        1e-8,
		MaxIter:    50,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	switch {
	case !o.Link.valid():
		return fmt.Errorf("%w: link %v", ErrInvalidParameter, o.Link)
	case !(o.Target > 0 && o.Target < 1):
		return fmt.Errorf("%w: target %v outside (0, 1)", ErrInvalidParameter, o.Target)
	case !(o.Confidence > 0 && o.Confidence < 1):
		return fmt.Errorf("%w: confidence %v outside (0, 1)", ErrInvalidParameter, o.Confidence)
	case !(o.Tol > 0):
		return fmt.Errorf("%w: tolerance %v", ErrInvalidParameter, o.Tol)
	case o.MaxIter < 1:
		return fmt.Errorf("%w: max iterations %d", ErrInvalidParameter, o.MaxIter)
	}
	return nil
}

// Point is one observed group. X is NaN when the group has no dose.
type Point struct {
	Group string  `json:"group"`
	X     float64 `json:"x"`
	Pos   int     `json:"pos"`
	Neg   int     `json:"neg"`
}

// N returns the number of objects behind the point.
func (p Point) N() int {
	return p.Pos + p.Neg
}

// Y returns the observed positive fraction, or NaN for an empty point.
func (p Point) Y() float64 {
	if p.N() == 0 {
		return math.NaN()
	}
	return float64(p.Pos) / float64(p.N())
}

// Evaluable reports whether the point enters the fit.
func (p Point) Evaluable() bool {
	return p.X > 0 && !math.IsInf(p.X, 1) && p.N() > 0
}

// Fit is a fitted binomial GLM of response against log dose. It is immutable.
type Fit struct {
	opts       Options
	b0, b1     float64
	cov        *mat.SymDense
	points     []Point
	deviance   float64
	nullDev    float64
	iterations int
	converged  bool
}

// FitAggregate fits the rows of an aggregated tally result.
func FitAggregate(res *tally.Result, opts Options, log logger.Logger) (*Fit, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: no aggregated rows", ErrInsufficientData)
	}
	points := make([]Point, len(res.Rows))
	for i, r := range res.Rows {
		x := math.NaN()
		if r.HasX {
			x = r.X
		}
		points[i] = Point{Group: r.Group, X: x, Pos: r.Pos, Neg: r.Neg}
	}
	return FitPoints(points, opts, log)
}

// FitPoints fits pos/neg counts against log(X) by iteratively reweighted least
// squares. Points with X <= 0, no dose or no objects are kept on the Fit but do
// not enter the likelihood.
func FitPoints(points []Point, opts Options, log logger.Logger) (*Fit, error) {
	log = logger.OrNop(log)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var xs, pos, n []float64
	anyPositive := false
	doses := make(map[float64]bool)
	for _, p := range points {
		if p.Pos < 0 || p.Neg < 0 {
			return nil, fmt.Errorf("%w: negative count in group %q", ErrInvalidParameter, p.Group)
		}
		if p.X > 0 {
			anyPositive = true
		}
		if !p.Evaluable() {
			continue
		}
		xs = append(xs, math.Log(p.X))
		pos = append(pos, float64(p.Pos))
		n = append(n, float64(p.N()))
		doses[p.X] = true
	}
	if !anyPositive {
		return nil, ErrNoPositiveDose
	}
	if len(doses) < 2 {
		return nil, fmt.Errorf("%w: %d distinct evaluable doses", ErrInsufficientData, len(doses))
	}
	if skipped := len(points) - len(xs); skipped > 0 {
		log.Debug(component, "points excluded from fit", map[string]interface{}{
			"excluded": skipped,
		})
	}

	f := &Fit{opts: opts, points: append([]Point(nil), points...)}
	if err := f.irls(xs, pos, n); err != nil {
		return nil, err
	}
	f.nullDev = nullDeviance(pos, n)

	fields := map[string]interface{}{
		"link":       opts.Link.String(),
		"intercept":  f.b0,
		"slope":      f.b1,
		"deviance":   f.deviance,
		"iterations": f.iterations,
		"points":     len(xs),
	}
	if !f.converged {
		log.Warning(component, "fit did not converge", fields)
	} else {
		log.Info(component, "dose response fitted", fields)
	}
	return f, nil
}

func (f *Fit) irls(xs, pos, n []float64) error {
	link := f.opts.Link
	k := len(xs)
	y := make([]float64, k)
	eta := make([]float64, k)
	mu := make([]float64, k)
	for i := range xs {
		y[i] = pos[i] / n[i]
		mu[i] = (pos[i] + 0.5) / (n[i] + 1)
		eta[i] = link.eta(mu[i])
	}
	dev := deviance(pos, n, mu)

	var coef, prev *mat.VecDense
	var chol mat.Cholesky
	for iter := 1; iter <= f.opts.MaxIter; iter++ {
		f.iterations = iter
		info := mat.NewSymDense(2, nil)
		score := mat.NewVecDense(2, nil)
		for i := range xs {
			d := link.dmu(eta[i])
			w := n[i] * d * d / (mu[i] * (1 - mu[i]))
			z := eta[i] + (y[i]-mu[i])/d
			info.SetSym(0, 0, info.At(0, 0)+w)
			info.SetSym(0, 1, info.At(0, 1)+w*xs[i])
			info.SetSym(1, 1, info.At(1, 1)+w*xs[i]*xs[i])
			score.SetVec(0, score.AtVec(0)+w*z)
			score.SetVec(1, score.AtVec(1)+w*z*xs[i])
		}
		if ok := chol.Factorize(info); !ok {
			return ErrSingular
		}
		next := mat.NewVecDense(2, nil)
		if err := chol.SolveVecTo(next, score); err != nil {
			return fmt.Errorf("%w: %v", ErrSingular, err)
		}

		newDev := f.evaluate(next, xs, pos, n, eta, mu)
		for half := 0; prev != nil && (math.IsNaN(newDev) || newDev > dev*(1+1e-12)) && half < 20; half++ {
			next.AddVec(next, prev)
			next.ScaleVec(0.5, next)
			newDev = f.evaluate(next, xs, pos, n, eta, mu)
		}
		coef = next
		prev = next

		if math.Abs(newDev-dev)/(math.Abs(newDev)+0.1) < f.opts.Tol {
			dev = newDev
			f.converged = true
			break
		}
		dev = newDev
	}

	f.b0, f.b1 = coef.AtVec(0), coef.AtVec(1)
	f.deviance = dev

	info := mat.NewSymDense(2, nil)
	for i := range xs {
		d := link.dmu(eta[i])
		w := n[i] * d * d / (mu[i] * (1 - mu[i]))
		info.SetSym(0, 0, info.At(0, 0)+w)
		info.SetSym(0, 1, info.At(0, 1)+w*xs[i])
		info.SetSym(1, 1, info.At(1, 1)+w*xs[i]*xs[i])
	}
	if ok := chol.Factorize(info); !ok {
		return ErrSingular
	}
	f.cov = mat.NewSymDense(2, nil)
	if err := chol.InverseTo(f.cov); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return nil
}

// evaluate sets eta and mu for coef and returns the resulting deviance.
func (f *Fit) evaluate(coef *mat.VecDense, xs, pos, n, eta, mu []float64) float64 {
	for i, x := range xs {
		eta[i] = coef.AtVec(0) + coef.AtVec(1)*x
		mu[i] = f.opts.Link.mu(eta[i])
	}
	return deviance(pos, n, mu)
}

// deviance is the binomial deviance, with 0*log(0) taken as 0.
func deviance(pos, n, mu []float64) float64 {
	var d float64
	for i := range pos {
		neg := n[i] - pos[i]
		if pos[i] > 0 {
			d += pos[i] * math.Log(pos[i]/(n[i]*mu[i]))
		}
		if neg > 0 {
			d += neg * math.Log(neg/(n[i]*(1-mu[i])))
		}
	}
	return 2 * d
}

func nullDeviance(pos, n []float64) float64 {
	var sp, sn float64
	for i := range pos {
		sp += pos[i]
		sn += n[i]
	}
	mu := make([]float64, len(pos))
	for i := range mu {
		mu[i] = sp / sn
	}
	return deviance(pos, n, mu)
}

// Options returns the options the fit was made with.
func (f *Fit) Options() Options { return f.opts }

// Link returns the link function.
func (f *Fit) Link() Link { return f.opts.Link }

// Coefficients returns the intercept and the slope on log dose.
func (f *Fit) Coefficients() (intercept, slope float64) { return f.b0, f.b1 }

// Covariance returns a copy of the coefficient covariance matrix.
func (f *Fit) Covariance() *mat.SymDense {
	c := mat.NewSymDense(2, nil)
	c.CopySym(f.cov)
	return c
}

// Points returns a copy of every input point, evaluable or not.
func (f *Fit) Points() []Point { return append([]Point(nil), f.points...) }

// Deviance returns the residual deviance.
func (f *Fit) Deviance() float64 { return f.deviance }

// NullDeviance returns the deviance of the intercept-only model.
func (f *Fit) NullDeviance() float64 { return f.nullDev }

// Iterations returns the number of IRLS iterations run.
func (f *Fit) Iterations() int { return f.iterations }

// Converged reports whether the deviance settled within MaxIter iterations.
func (f *Fit) Converged() bool { return f.converged }

// DoseRange returns the smallest and largest evaluable dose.
func (f *Fit) DoseRange() (lo, hi float64) {
	var xs []float64
	for _, p := range f.points {
		if p.Evaluable() {
			xs = append(xs, p.X)
		}
	}
	sort.Float64s(xs)
	return xs[0], xs[len(xs)-1]
}

// Predict returns the fitted response at each dose; doses <= 0 give NaN.
func (f *Fit) Predict(doses []float64) []float64 {
	out := make([]float64, len(doses))
	for i, d := range doses {
		if !(d > 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = f.opts.Link.mu(f.b0 + f.b1*math.Log(d))
	}
	return out
}
