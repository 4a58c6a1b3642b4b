package segment

import (
	"math"

	tsimage "titerscope/internal/image"

	"gocv.io/x/gocv"
)

// grayToMat copies an intensity image into a single-channel float32 Mat.
func grayToMat(g *tsimage.Gray) gocv.Mat {
	mat := gocv.NewMatWithSize(g.Height, g.Width, gocv.MatTypeCV32F)
	for y := 0; y < g.Height; y++ {
		row := y * g.Width
		for x := 0; x < g.Width; x++ {
			mat.SetFloatAt(y, x, float32(g.Pix[row+x]))
		}
	}
	return mat
}

// matToGray copies a single-channel float32 Mat into a new intensity image.
func matToGray(mat gocv.Mat) *tsimage.Gray {
	g := tsimage.NewGray(mat.Cols(), mat.Rows())
	for y := 0; y < g.Height; y++ {
		row := y * g.Width
		for x := 0; x < g.Width; x++ {
			g.Pix[row+x] = float64(mat.GetFloatAt(y, x))
		}
	}
	return g
}

// unitToMat8 quantises [0,1] intensities to an 8-bit Mat.
func unitToMat8(g *tsimage.Gray) gocv.Mat {
	mat := gocv.NewMatWithSize(g.Height, g.Width, gocv.MatTypeCV8U)
	for y := 0; y < g.Height; y++ {
		row := y * g.Width
		for x := 0; x < g.Width; x++ {
			v := math.Round(g.Pix[row+x] * 255)
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			mat.SetUCharAt(y, x, uint8(v))
		}
	}
	return mat
}

// mat8ToUnit maps an 8-bit Mat back to [0,1] intensities.
func mat8ToUnit(mat gocv.Mat) *tsimage.Gray {
	g := tsimage.NewGray(mat.Cols(), mat.Rows())
	for y := 0; y < g.Height; y++ {
		row := y * g.Width
		for x := 0; x < g.Width; x++ {
			g.Pix[row+x] = float64(mat.GetUCharAt(y, x)) / 255
		}
	}
	return g
}

// binaryToMat renders a mask as an 8-bit Mat with foreground 255.
func binaryToMat(b *Binary) gocv.Mat {
	mat := gocv.NewMatWithSize(b.Height, b.Width, gocv.MatTypeCV8U)
	for y := 0; y < b.Height; y++ {
		row := y * b.Width
		for x := 0; x < b.Width; x++ {
			var v uint8
			if b.Pix[row+x] {
				v = 255
			}
			mat.SetUCharAt(y, x, v)
		}
	}
	return mat
}
