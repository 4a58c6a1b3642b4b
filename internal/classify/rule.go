package classify

import (
	"fmt"
	"math"

	tsimage "titerscope/internal/image"
	"titerscope/internal/segment"

	"gocv.io/x/gocv"
)

// Rule decides which objects are positive. With Auto set the cutoff is derived
// from the target image by Otsu's method and Cutoff is ignored.
type Rule struct {
	Param  string  `json:"param"`
	Cutoff float64 `json:"cutoff"`
	Auto   bool    `json:"auto"`
}

// DefaultRule scores the "positive" column with an automatic cutoff.
func DefaultRule() Rule {
	return Rule{Param: "positive", Auto: true}
}

// Resolve returns the intensity cutoff the rule applies to target.
func (r Rule) Resolve(target *tsimage.Gray) (float64, error) {
	if !r.Auto {
		if math.IsNaN(r.Cutoff) || math.IsInf(r.Cutoff, 0) {
			return 0, fmt.Errorf("%w: cutoff %v", segment.ErrInvalidParameter, r.Cutoff)
		}
		return r.Cutoff, nil
	}
	return OtsuLevel(target)
}

// OtsuLevel returns the Otsu threshold of target in its own intensity units.
// The image is quantised to 8 bits between its minimum and maximum.
func OtsuLevel(target *tsimage.Gray) (float64, error) {
	if target.Empty() {
		return 0, fmt.Errorf("%w: empty target image", segment.ErrInvalidParameter)
	}
	lo, hi := target.MinMax()
	if hi <= lo {
		return hi, nil
	}

	src := gocv.NewMatWithSize(target.Height, target.Width, gocv.MatTypeCV8U)
	defer src.Close()
	scale := 255 / (hi - lo)
	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			src.SetUCharAt(y, x, uint8(math.Round((target.At(x, y)-lo)*scale)))
		}
	}

	dst := gocv.NewMat()
	defer dst.Close()
	level := gocv.Threshold(src, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return lo + float64(level)/scale, nil
}

// Classify flags objects whose mean intensity exceeds cutoff.
func Classify(objs []Object, cutoff float64) []bool {
	flags := make([]bool, len(objs))
	for i, o := range objs {
		flags[i] = o.Mean > cutoff
	}
	return flags
}
