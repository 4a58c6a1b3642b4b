// Package classify measures segmented objects in a target channel and flags
// each one as positive or negative.
package classify

import (
	"fmt"

	tsimage "titerscope/internal/image"
	"titerscope/internal/segment"
	"titerscope/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// Object holds the features of one labeled nucleus measured in the target channel.
type Object struct {
	Label      int              `json:"label"`
	Area       int              `json:"area"`
	Centroid   geometry.Point2D `json:"centroid"`
	Bounds     geometry.RectInt `json:"bounds"`
	Mean       float64          `json:"mean_intensity"`
	SD         float64          `json:"sd_intensity"`
	Integrated float64          `json:"integrated_intensity"`
}

// Measure computes per-label features of target under labels. Objects are
// returned in label order; labels with no pixels are skipped.
func Measure(labels *segment.Labels, target *tsimage.Gray) ([]Object, error) {
	if labels == nil || target.Empty() {
		return nil, fmt.Errorf("%w: missing labels or target image", segment.ErrInvalidParameter)
	}
	if labels.Width != target.Width || labels.Height != target.Height {
		return nil, fmt.Errorf("%w: labels %dx%d, target %dx%d", tsimage.ErrSizeMismatch,
			labels.Width, labels.Height, target.Width, target.Height)
	}

	values := make([][]float64, labels.Count)
	sumX := make([]float64, labels.Count)
	sumY := make([]float64, labels.Count)
	bounds := make([]geometry.RectInt, labels.Count)
	for y := 0; y < labels.Height; y++ {
		for x := 0; x < labels.Width; x++ {
			l := labels.LabelAt(x, y)
			if l == 0 {
				continue
			}
			i := l - 1
			values[i] = append(values[i], target.At(x, y))
			sumX[i] += float64(x)
			sumY[i] += float64(y)
			bounds[i] = bounds[i].Extend(x, y)
		}
	}

	objs := make([]Object, 0, labels.Count)
	for i, v := range values {
		n := len(v)
		if n == 0 {
			continue
		}
		mean, sd := stat.MeanStdDev(v, nil)
		if n == 1 {
			sd = 0
		}
		objs = append(objs, Object{
			Label:      i + 1,
			Area:       n,
			Centroid:   geometry.NewPoint2D(sumX[i]/float64(n), sumY[i]/float64(n)),
			Bounds:     bounds[i],
			Mean:       mean,
			SD:         sd,
			Integrated: mean * float64(n),
		})
	}
	return objs, nil
}
