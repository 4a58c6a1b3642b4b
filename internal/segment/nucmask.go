package segment

import (
	"fmt"
	"image"
	"math"
	"time"

	tsimage "titerscope/internal/image"
	"titerscope/internal/logger"

	"gocv.io/x/gocv"
)

const component = "segment"

// NucMaskFromSource resolves src and segments it with NucMask.
func NucMaskFromSource(src tsimage.Source, p Params, log logger.Logger) (*Labels, error) {
	img, err := src.Resolve()
	if err != nil {
		return nil, err
	}
	return NucMask(img, p, log)
}

// NucMask segments a nuclear-stain image into labeled nuclei:
// gamma correction, min/max normalisation, median + Gaussian smoothing, adaptive
// disc threshold, hole filling, distance transform and watershed.
//
// A mask with no foreground yields zero labels (DegenerateEmpty); a mask that is
// foreground everywhere yields one label (DegenerateFull).
func NucMask(img *tsimage.Gray, p Params, log logger.Logger) (*Labels, error) {
	log = logger.OrNop(log)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty or malformed image", ErrInvalidParameter)
	}
	start := time.Now()

	norm, err := Normalize(img, p.Gamma)
	if err != nil {
		return nil, err
	}
	smoothed := Smooth(norm, p.Sigma)

	mask, err := Threshold(smoothed, p.Width, p.Offset)
	if err != nil {
		return nil, err
	}
	filled := FillHoles(mask)
	fg := filled.Count()
	log.Debug(component, "mask thresholded", map[string]interface{}{
		"foreground":   fg,
		"filled_holes": fg - mask.Count(),
		"window":       WindowDiameter(p.Width),
	})

	var labels *Labels
	switch fg {
	case 0:
		labels = emptyLabels(img.Width, img.Height)
	case len(filled.Pix):
		labels = fullLabels(img.Width, img.Height)
	default:
		labels = Watershed(DistanceMap(filled), img.Width, img.Height, p.Tolerance, p.Ext)
	}

	fields := map[string]interface{}{
		"objects":  labels.Count,
		"width":    img.Width,
		"height":   img.Height,
		"duration": time.Since(start),
	}
	if labels.Degenerate != NotDegenerate {
		fields["degenerate"] = labels.Degenerate.String()
		log.Warning(component, "degenerate nuclear mask", fields)
	} else {
		log.Info(component, "nuclei segmented", fields)
	}
	return labels, nil
}

// Normalize raises every sample to gamma and rescales the result to [0,1] using the
// observed minimum and maximum. A constant image maps to zeros.
func Normalize(img *tsimage.Gray, gamma float64) (*tsimage.Gray, error) {
	out := tsimage.NewGray(img.Width, img.Height)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range img.Pix {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: sample %d is %g, intensities must be finite and >= 0", ErrInvalidParameter, i, v)
		}
		if gamma != 1 {
			v = math.Pow(v, gamma)
		}
		out.Pix[i] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	for i, v := range out.Pix {
		if span > 0 {
			out.Pix[i] = (v - lo) / span
		} else {
			out.Pix[i] = 0
		}
	}
	return out, nil
}

// Smooth applies a median filter of radius sigma followed by a Gaussian blur with
// standard deviation sigma. The input is expected in [0,1]; the median runs on an
// 8-bit copy. sigma <= 0 returns an unmodified copy.
func Smooth(img *tsimage.Gray, sigma float64) *tsimage.Gray {
	if sigma <= 0 {
		return img.Clone()
	}

	medianSize := 2*int(math.Round(sigma)) + 1
	src8 := unitToMat8(img)
	defer src8.Close()
	median := gocv.NewMat()
	defer median.Close()
	if medianSize >= 3 {
		gocv.MedianBlur(src8, &median, medianSize)
	} else {
		src8.CopyTo(&median)
	}
	medianImg := mat8ToUnit(median)

	src := grayToMat(medianImg)
	defer src.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()
	k := 2*int(math.Ceil(3*sigma)) + 1
	gocv.GaussianBlur(src, &blurred, image.Point{X: k, Y: k}, sigma, sigma, gocv.BorderReplicate)

	return matToGray(blurred)
}
