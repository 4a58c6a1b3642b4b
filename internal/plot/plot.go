// Package plot renders dose-response fits as annotated PNG charts.
package plot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"titerscope/internal/doseresponse"
	"titerscope/pkg/colorutil"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"
)

// Options are the cosmetic settings of a chart.
type Options struct {
	Title  string `json:"title"`
	XLabel string `json:"x_label"`
	YLabel string `json:"y_label"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// XMin and XMax bound the dose axis; zero means derive from the data.
	XMin float64 `json:"x_min,omitempty"`
	XMax float64 `json:"x_max,omitempty"`
	// GridPoints is the number of log-spaced doses the curve is drawn through.
	GridPoints int `json:"grid_points"`

	CurveColor     color.RGBA `json:"-"`
	PointColor     color.RGBA `json:"-"`
	ExcludedColor  color.RGBA `json:"-"`
	ReferenceColor color.RGBA `json:"-"`
}

// DefaultOptions returns a 800x500 chart labelled for MOI against infected fraction.
func DefaultOptions() Options {
	return Options{
		Title:          "Dose response",
		XLabel:         "MOI (log10)",
		YLabel:         "Fraction positive",
		Width:          800,
		Height:         500,
		GridPoints:     200,
		CurveColor:     color.RGBA{R: 31, G: 119, B: 180, A: 255},
		PointColor:     colorutil.Black,
		ExcludedColor:  color.RGBA{R: 160, G: 160, B: 160, A: 255},
		ReferenceColor: color.RGBA{R: 214, G: 39, B: 40, A: 255},
	}
}

func toDrawing(c color.RGBA) drawing.Color {
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

// pointStyle draws dots without a connecting line.
func pointStyle(c color.RGBA) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    toDrawing(c),
	}
}

func lineStyle(c color.RGBA, width float64, dashed bool) chart.Style {
	s := chart.Style{StrokeColor: toDrawing(c), StrokeWidth: width}
	if dashed {
		s.StrokeDashArray = []float64{5, 5}
	}
	return s
}

// axisRange returns the log10 dose range of the chart. The lower bound leaves
// room to pin points without a usable dose at the left edge.
func axisRange(fit *doseresponse.Fit, opts Options) (lo, hi float64) {
	dlo, dhi := fit.DoseRange()
	if opts.XMin > 0 {
		dlo = opts.XMin
	}
	if opts.XMax > dlo {
		dhi = opts.XMax
	}
	lo = math.Floor(math.Log10(dlo) - 0.5)
	hi = math.Ceil(math.Log10(dhi))
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// DecadeTicks returns one tick per power of ten between lo and hi (log10 units).
func DecadeTicks(lo, hi float64) []chart.Tick {
	var ticks []chart.Tick
	for k := math.Ceil(lo); k <= hi; k++ {
		ticks = append(ticks, chart.Tick{
			Value: k,
			Label: strconv.FormatFloat(math.Pow(10, k), 'g', -1, 64),
		})
	}
	return ticks
}

// Chart assembles the go-chart definition for fit.
func Chart(fit *doseresponse.Fit, opts Options) chart.Chart {
	lo, hi := axisRange(fit, opts)
	if opts.GridPoints < 2 {
		opts.GridPoints = 2
	}

	// The curve covers the observed doses only; the axis may be wider.
	dlo, dhi := fit.DoseRange()
	dlo = math.Max(dlo, math.Pow(10, lo))
	dhi = math.Min(dhi, math.Pow(10, hi))
	if dhi < dlo {
		dlo, dhi = math.Pow(10, lo), math.Pow(10, hi)
	}
	grid := floats.LogSpan(make([]float64, opts.GridPoints), dlo, dhi)
	curveX := make([]float64, len(grid))
	for i, d := range grid {
		curveX[i] = math.Log10(d)
	}

	var obsX, obsY, excX, excY []float64
	for _, p := range fit.Points() {
		if p.N() == 0 {
			continue
		}
		if p.Evaluable() {
			obsX = append(obsX, math.Log10(p.X))
			obsY = append(obsY, p.Y())
		} else {
			excX = append(excX, lo)
			excY = append(excY, p.Y())
		}
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "Fit (" + fit.Link().String() + ")",
			XValues: curveX,
			YValues: fit.Predict(grid),
			Style:   lineStyle(opts.CurveColor, 2, false),
		},
		chart.ContinuousSeries{
			Name:    "Observed",
			XValues: obsX,
			YValues: obsY,
			Style:   pointStyle(opts.PointColor),
		},
	}
	if len(excX) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    "No dose",
			XValues: excX,
			YValues: excY,
			Style:   pointStyle(opts.ExcludedColor),
		})
	}

	if est, err := fit.Titer(); err == nil && est.Dose > 0 {
		// An extrapolated titer is marked at the axis edge.
		raw := math.Log10(est.Dose)
		tx := clampRange(raw, lo, hi)
		ref := lineStyle(opts.ReferenceColor, 1, true)
		series = append(series, chart.ContinuousSeries{
			Name:    "Titer",
			XValues: []float64{lo, tx},
			YValues: []float64{est.Target, est.Target},
			Style:   ref,
		})
		if raw == tx {
			series = append(series, chart.ContinuousSeries{
				XValues: []float64{tx, tx},
				YValues: []float64{0, est.Target},
				Style:   ref,
			})
		}
		series = append(series,
			chart.ContinuousSeries{
				XValues: []float64{clampRange(math.Log10(est.Lower), lo, hi), clampRange(math.Log10(est.Upper), lo, hi)},
				YValues: []float64{est.Target, est.Target},
				Style:   lineStyle(opts.ReferenceColor, 4, false),
			},
			chart.AnnotationSeries{
				Annotations: []chart.Value2{{
					XValue: tx,
					YValue: est.Target,
					Label:  fmt.Sprintf("%.3g [%.3g, %.3g]", est.Dose, est.Lower, est.Upper),
				}},
			},
		)
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  opts.XLabel,
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			Ticks: DecadeTicks(lo, hi),
		},
		YAxis: chart.YAxis{
			Name:  opts.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Render writes fit as a PNG chart to w.
func Render(w io.Writer, fit *doseresponse.Fit, opts Options) error {
	ch := Chart(fit, opts)
	return ch.Render(chart.PNG, w)
}

// Image renders fit and decodes the result.
func Image(fit *doseresponse.Fit, opts Options) (image.Image, error) {
	var buf bytes.Buffer
	if err := Render(&buf, fit, opts); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// SavePNG renders fit to a PNG file, creating parent directories.
func SavePNG(path string, fit *doseresponse.Fit, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Render(f, fit, opts); err != nil {
		f.Close()
		return fmt.Errorf("failed to render plot: %w", err)
	}
	return f.Close()
}
