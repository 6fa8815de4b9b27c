package cover

import (
	"image"

	"github.com/disintegration/imaging"
)

// Annulus crops the 2r x 2r square around (cx, cy) and keeps only pixels
// inside radius r and outside the hole radius. Pixels that fall outside the
// source photo are transparent.
func Annulus(src image.Image, cx, cy, r, hole int) *image.NRGBA {
	size := 2 * r
	if size <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	// Clone normalises the bounds to start at the origin.
	in := imaging.Clone(src)
	w, h := in.Bounds().Dx(), in.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, size, size))

	r2 := r * r
	hole2 := hole * hole
	for j := 0; j < size; j++ {
		y := cy - r + j
		if y < 0 || y >= h {
			continue
		}
		dy := y - cy
		for i := 0; i < size; i++ {
			x := cx - r + i
			if x < 0 || x >= w {
				continue
			}
			dx := x - cx
			d2 := dx*dx + dy*dy
			if d2 > r2 || d2 <= hole2 {
				continue
			}
			out.SetNRGBA(i, j, in.NRGBAAt(x, y))
		}
	}
	return out
}
