package segment

// FillHoles returns a copy of mask in which every background region that is not
// 4-connected to the image border has been turned into foreground.
// Filling an already filled mask returns an identical mask.
func FillHoles(mask *Binary) *Binary {
	w, h := mask.Width, mask.Height
	out := &Binary{Width: w, Height: h, Pix: make([]bool, len(mask.Pix))}

	// Background reachable from the border; everything else ends up foreground.
	outside := make([]bool, len(mask.Pix))
	stack := make([]int, 0, 2*(w+h))
	push := func(i int) {
		if !mask.Pix[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}

	for i := range out.Pix {
		out.Pix[i] = !outside[i]
	}
	return out
}
