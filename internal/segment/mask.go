package segment

// Binary is a foreground/background mask with the shape of its source image.
type Binary struct {
	Width  int
	Height int
	Pix    []bool
}

// NewBinary creates an all-background mask.
func NewBinary(width, height int) *Binary {
	return &Binary{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At reports whether (x, y) is foreground.
func (b *Binary) At(x, y int) bool {
	return b.Pix[y*b.Width+x]
}

// Set marks (x, y) as foreground or background.
func (b *Binary) Set(x, y int, v bool) {
	b.Pix[y*b.Width+x] = v
}

// Count returns the number of foreground pixels.
func (b *Binary) Count() int {
	n := 0
	for _, v := range b.Pix {
		if v {
			n++
		}
	}
	return n
}

// Equal reports whether both masks have the same shape and pixels.
func (b *Binary) Equal(other *Binary) bool {
	if b.Width != other.Width || b.Height != other.Height {
		return false
	}
	for i, v := range b.Pix {
		if other.Pix[i] != v {
			return false
		}
	}
	return true
}

// Degeneracy tells a genuine segmentation apart from the trivial outcomes.
type Degeneracy int

const (
	// NotDegenerate means the mask had both foreground and background.
	NotDegenerate Degeneracy = iota
	// DegenerateEmpty means nothing passed the threshold; Count is 0.
	DegenerateEmpty
	// DegenerateFull means every pixel passed the threshold; Count is 1.
	DegenerateFull
)

func (d Degeneracy) String() string {
	switch d {
	case NotDegenerate:
		return "none"
	case DegenerateEmpty:
		return "empty"
	case DegenerateFull:
		return "full"
	default:
		return "unknown"
	}
}

// Labels is a labeled mask: 0 is background and 1..Count identify objects.
// Labels are numbered in raster order of each object's first pixel.
type Labels struct {
	Width      int
	Height     int
	Pix        []int32
	Count      int
	Degenerate Degeneracy
}

// Size returns the mask dimensions.
func (l *Labels) Size() (int, int) {
	return l.Width, l.Height
}

// LabelAt returns the label at (x, y).
func (l *Labels) LabelAt(x, y int) int {
	return int(l.Pix[y*l.Width+x])
}

// Areas returns the pixel count of each label; Areas()[i] belongs to label i+1.
func (l *Labels) Areas() []int {
	areas := make([]int, l.Count)
	for _, v := range l.Pix {
		if v > 0 {
			areas[v-1]++
		}
	}
	return areas
}

func emptyLabels(width, height int) *Labels {
	return &Labels{Width: width, Height: height, Pix: make([]int32, width*height), Degenerate: DegenerateEmpty}
}

func fullLabels(width, height int) *Labels {
	l := &Labels{Width: width, Height: height, Pix: make([]int32, width*height), Count: 1, Degenerate: DegenerateFull}
	for i := range l.Pix {
		l.Pix[i] = 1
	}
	return l
}
