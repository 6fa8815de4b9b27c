package cover

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"ripperbot/internal/config"
)

// HoughFinder is a gradient Hough circle search on the luminance of an image.
// Edge pixels vote for centres along their gradient; each accepted centre is
// then given the best supported radius in the search window.
type HoughFinder struct {
	BlurSigma     float64
	EdgeThreshold float64
	// VoteThreshold is the fraction of a full circumference that must vote
	// for a centre and support its radius.
	VoteThreshold float64
	MinDistance   int
	MaxCircles    int
}

// NewHoughFinder builds a finder from the cover tuning section.
func NewHoughFinder(cfg config.Cover) *HoughFinder {
	return &HoughFinder{
		BlurSigma:     cfg.BlurSigma,
		EdgeThreshold: cfg.EdgeThreshold,
		VoteThreshold: cfg.VoteThreshold,
		MinDistance:   cfg.MinDistance,
		MaxCircles:    cfg.MaxCircles,
	}
}

type edgePoint struct {
	x, y int
	ux   float64
	uy   float64
	mag  float64
}

// FindCircles returns circles ordered by centre support, strongest first.
func (f *HoughFinder) FindCircles(img image.Image, minR, maxR int) ([]Circle, error) {
	if minR <= 0 || maxR < minR {
		return nil, fmt.Errorf("invalid radius window [%d, %d]", minR, maxR)
	}
	gray := imaging.Grayscale(img)
	if f.BlurSigma > 0 {
		gray = imaging.Blur(gray, f.BlurSigma)
	}
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return nil, nil
	}

	edges := sobelEdges(gray, f.EdgeThreshold)
	if len(edges) == 0 {
		return nil, nil
	}

	acc := make([]int32, w*h)
	for _, e := range edges {
		for r := minR; r <= maxR; r++ {
			for _, sign := range [2]float64{1, -1} {
				cx := int(math.Round(float64(e.x) + sign*float64(r)*e.ux))
				cy := int(math.Round(float64(e.y) + sign*float64(r)*e.uy))
				if cx < 0 || cx >= w || cy < 0 || cy >= h {
					continue
				}
				acc[cy*w+cx]++
			}
		}
	}

	centreVotes := int32(math.Max(1, f.VoteThreshold*2*math.Pi*float64(minR)))
	type peak struct {
		x, y  int
		votes int32
	}
	var peaks []peak
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := acc[y*w+x]
			if v < centreVotes || !localMax(acc, w, h, x, y) {
				continue
			}
			peaks = append(peaks, peak{x: x, y: y, votes: v})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })

	minDist2 := f.MinDistance * f.MinDistance
	var circles []Circle
	for _, p := range peaks {
		if f.MaxCircles > 0 && len(circles) >= f.MaxCircles {
			break
		}
		near := false
		for _, c := range circles {
			dx, dy := c.X-p.x, c.Y-p.y
			if dx*dx+dy*dy < minDist2 {
				near = true
				break
			}
		}
		if near {
			continue
		}
		if r, ok := f.bestRadius(edges, p.x, p.y, minR, maxR); ok {
			circles = append(circles, Circle{X: p.x, Y: p.y, R: r})
		}
	}
	return circles, nil
}

func (f *HoughFinder) bestRadius(edges []edgePoint, cx, cy, minR, maxR int) (int, bool) {
	n := maxR - minR + 1
	counts := make([]int, n)
	weights := make([]float64, n)
	for _, e := range edges {
		d := math.Hypot(float64(e.x-cx), float64(e.y-cy))
		ri := int(math.Round(d))
		if ri < minR || ri > maxR {
			continue
		}
		counts[ri-minR]++
		weights[ri-minR] += e.mag
	}
	best := -1
	for i := range weights {
		if weights[i] > 0 && (best < 0 || weights[i] > weights[best]) {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	r := minR + best
	if float64(counts[best]) < f.VoteThreshold*2*math.Pi*float64(r) {
		return 0, false
	}
	return r, true
}

func localMax(acc []int32, w, h, x, y int) bool {
	v := acc[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			if acc[ny*w+nx] > v {
				return false
			}
		}
	}
	return true
}

// sobelEdges returns pixels whose Sobel gradient magnitude reaches threshold.
// gray must be a grayscale NRGBA; only the red channel is read.
func sobelEdges(gray *image.NRGBA, threshold float64) []edgePoint {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	lum := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}
	var edges []edgePoint
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := lum(x+1, y-1) + 2*lum(x+1, y) + lum(x+1, y+1) -
				lum(x-1, y-1) - 2*lum(x-1, y) - lum(x-1, y+1)
			gy := lum(x-1, y+1) + 2*lum(x, y+1) + lum(x+1, y+1) -
				lum(x-1, y-1) - 2*lum(x, y-1) - lum(x+1, y-1)
			mag := math.Hypot(gx, gy)
			if mag < threshold || mag == 0 {
				continue
			}
			edges = append(edges, edgePoint{x: x, y: y, ux: gx / mag, uy: gy / mag, mag: mag})
		}
	}
	return edges
}
