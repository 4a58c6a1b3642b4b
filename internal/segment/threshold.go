package segment

import (
	"fmt"
	"image"

	tsimage "titerscope/internal/image"

	"gocv.io/x/gocv"
)

// WindowDiameter returns the odd disc diameter used for a threshold window width.
func WindowDiameter(width int) int {
	return width - width%2 + 1
}

// discKernel returns a normalised disc of the given odd diameter as a float32 Mat.
// A cell belongs to the disc when dx²+dy² <= r².
func discKernel(diameter int) gocv.Mat {
	r := diameter / 2
	kernel := gocv.NewMatWithSize(diameter, diameter, gocv.MatTypeCV32F)

	n := 0
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				n++
			}
		}
	}
	w := float32(1) / float32(n)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			var v float32
			if dx*dx+dy*dy <= r*r {
				v = w
			}
			kernel.SetFloatAt(dy+r, dx+r, v)
		}
	}
	return kernel
}

// Threshold marks a pixel as foreground when its intensity exceeds the mean of the
// disc-shaped neighbourhood around it by more than offset. Edges replicate the
// outermost pixels. Because only the local deviation matters, adding a constant to
// the whole image leaves the result unchanged.
func Threshold(img *tsimage.Gray, width int, offset float64) (*Binary, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidParameter)
	}
	if width <= 1 {
		return nil, fmt.Errorf("%w: width must be > 1, got %d", ErrInvalidParameter, width)
	}

	src := grayToMat(img)
	defer src.Close()

	kernel := discKernel(WindowDiameter(width))
	defer kernel.Close()

	mean := gocv.NewMat()
	defer mean.Close()
	gocv.Filter2D(src, &mean, -1, kernel, image.Point{X: -1, Y: -1}, 0, gocv.BorderReplicate)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(src, mean, &diff)

	mask := NewBinary(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		row := y * img.Width
		for x := 0; x < img.Width; x++ {
			mask.Pix[row+x] = float64(diff.GetFloatAt(y, x)) > offset
		}
	}
	return mask, nil
}
