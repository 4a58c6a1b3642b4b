package segment

import (
	"sort"

	"gocv.io/x/gocv"
)

// DistanceMap returns, for every foreground pixel, the Euclidean distance (5x5
// chamfer approximation) to the nearest background pixel. Background is 0.
func DistanceMap(mask *Binary) []float64 {
	src := binaryToMat(mask)
	defer src.Close()

	dist := gocv.NewMat()
	defer dist.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(src, &dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	out := make([]float64, mask.Width*mask.Height)
	for y := 0; y < mask.Height; y++ {
		row := y * mask.Width
		for x := 0; x < mask.Width; x++ {
			out[row+x] = float64(dist.GetFloatAt(y, x))
		}
	}
	return out
}

// basins is a union-find over watershed basins; peak holds each root's seed height.
type basins struct {
	parent []int32
	peak   []float64
}

func (b *basins) add(height float64) int32 {
	id := int32(len(b.parent))
	b.parent = append(b.parent, id)
	b.peak = append(b.peak, height)
	return id
}

func (b *basins) find(id int32) int32 {
	for b.parent[id] != id {
		b.parent[id] = b.parent[b.parent[id]]
		id = b.parent[id]
	}
	return id
}

// Watershed floods the landscape dist (row-major, width x height) from its local
// maxima and returns one label per catchment basin. Pixels with dist <= 0 are
// background.
//
// Pixels are visited from the highest value down; equal values are visited in raster
// order. A pixel with no labelled pixel inside its (2*ext+1)² window seeds a new
// basin. Otherwise neighbouring basins whose peak is less than tolerance above the
// current value are merged into the neighbouring basin with the highest peak (lowest
// basin id on ties), and the pixel joins the basin of its nearest labelled neighbour
// (first in window raster order on ties).
func Watershed(dist []float64, width, height int, tolerance float64, ext int) *Labels {
	if ext < 1 {
		ext = 1
	}

	order := make([]int, 0, len(dist))
	for i, v := range dist {
		if v > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dist[order[a]] > dist[order[b]]
	})

	// raw holds basin ids + 1 so that 0 stays background.
	raw := make([]int32, len(dist))
	bs := &basins{}
	seen := make([]int32, 0, (2*ext+1)*(2*ext+1))

	for _, p := range order {
		x, y := p%width, p/width
		v := dist[p]

		seen = seen[:0]
		nearest, nearestD := int32(-1), 0
		for dy := -ext; dy <= ext; dy++ {
			ny := y + dy
			if ny < 0 || ny >= height {
				continue
			}
			for dx := -ext; dx <= ext; dx++ {
				nx := x + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= width {
					continue
				}
				r := raw[ny*width+nx]
				if r == 0 {
					continue
				}
				id := bs.find(r - 1)
				if d := dx*dx + dy*dy; nearest < 0 || d < nearestD {
					nearest, nearestD = id, d
				}
				if !containsID(seen, id) {
					seen = append(seen, id)
				}
			}
		}

		if len(seen) == 0 {
			raw[p] = bs.add(v) + 1
			continue
		}

		top := seen[0]
		for _, id := range seen[1:] {
			if bs.peak[id] > bs.peak[top] || (bs.peak[id] == bs.peak[top] && id < top) {
				top = id
			}
		}
		for _, id := range seen {
			if id != top && bs.peak[id]-v < tolerance {
				bs.parent[id] = top
			}
		}
		raw[p] = bs.find(nearest) + 1
	}

	return compact(raw, bs, width, height)
}

// compact resolves merged basins and renumbers them 1..n in raster order.
func compact(raw []int32, bs *basins, width, height int) *Labels {
	out := &Labels{Width: width, Height: height, Pix: make([]int32, len(raw))}
	remap := make(map[int32]int32)
	for i, r := range raw {
		if r == 0 {
			continue
		}
		root := bs.find(r - 1)
		label, ok := remap[root]
		if !ok {
			out.Count++
			label = int32(out.Count)
			remap[root] = label
		}
		out.Pix[i] = label
	}
	if out.Count == 0 {
		out.Degenerate = DegenerateEmpty
	}
	return out
}

func containsID(ids []int32, id int32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
