// Package cover turns a tray photo into a square, alpha-masked cover image
// centred on the disc.
//
// The crop circle starts from the calibration markers, is refined against
// circles found near the calibrated radius, and is cut out as an annulus so
// the spindle hole stays transparent.
package cover

import (
	"fmt"
	"image"
	"math"

	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
)

// Circle is a circle in pixel space.
type Circle struct {
	X int
	Y int
	R int
}

// Center returns the circle centre as a calibration point.
func (c Circle) Center() calibration.Point {
	return calibration.Point{X: c.X, Y: c.Y}
}

func (c Circle) String() string {
	return fmt.Sprintf("(%d,%d) r=%d", c.X, c.Y, c.R)
}

// Geometry holds the mask constants derived from configuration.
type Geometry struct {
	RadiusFix       int
	HoleRatio       float64
	RadiusTolerance float64
}

// GeometryFromConfig extracts the mask constants from the cover section.
func GeometryFromConfig(cfg config.Cover) Geometry {
	return Geometry{
		RadiusFix:       cfg.MaskRadiusFix,
		HoleRatio:       cfg.HoleRatio,
		RadiusTolerance: cfg.RadiusTolerance,
	}
}

// BaseRadius is the marker distance, truncated to whole pixels, plus the
// fixed correction.
func BaseRadius(m calibration.Markers, fix int) int {
	return int(m.DiskCenter.Dist(m.DiskEdge)) + fix
}

// HoleRadius is the spindle hole radius for a disc of radius r.
func HoleRadius(r int, ratio float64) int {
	return int(math.Round(float64(r) * ratio))
}

// RadiusBounds returns the inclusive radius window searched around r.
func RadiusBounds(r int, tolerance float64) (int, int) {
	minR := int(math.Floor(float64(r)*(1-tolerance) + 1e-9))
	maxR := int(math.Ceil(float64(r)*(1+tolerance) - 1e-9))
	if minR < 1 {
		minR = 1
	}
	if maxR < minR {
		maxR = minR
	}
	return minR, maxR
}

// SelectCircle returns the candidate closest to the calibrated circle using
// centre distance plus radius difference. Ties keep the earlier candidate.
func SelectCircle(candidates []Circle, center calibration.Point, r int) (Circle, bool) {
	best := -1
	bestScore := math.Inf(1)
	for i, c := range candidates {
		score := c.Center().Dist(center) + math.Abs(float64(c.R-r))
		if score < bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Circle{}, false
	}
	return candidates[best], true
}

// CircleFinder searches an image for circles with radii in [minR, maxR].
type CircleFinder interface {
	FindCircles(img image.Image, minR, maxR int) ([]Circle, error)
}

// Result describes one cover computation.
type Result struct {
	Calibrated Circle
	Chosen     Circle
	Hole       int
	Refined    bool
	Candidates int
	Image      *image.NRGBA
}

// Compute derives the crop circle for photo and returns the masked cover.
// A nil finder, or one that finds nothing, falls back to the calibrated circle.
func Compute(photo image.Image, markers calibration.Markers, geom Geometry, finder CircleFinder) (Result, error) {
	r := BaseRadius(markers, geom.RadiusFix)
	if r <= 0 {
		return Result{}, fmt.Errorf("mask radius %d is not positive (markers %s %s, fix %d)", r, markers.DiskCenter, markers.DiskEdge, geom.RadiusFix)
	}
	calibrated := Circle{X: markers.DiskCenter.X, Y: markers.DiskCenter.Y, R: r}
	res := Result{Calibrated: calibrated, Chosen: calibrated}

	if finder != nil {
		minR, maxR := RadiusBounds(r, geom.RadiusTolerance)
		found, err := finder.FindCircles(photo, minR, maxR)
		if err != nil {
			return Result{}, fmt.Errorf("circle search: %w", err)
		}
		res.Candidates = len(found)
		if c, ok := SelectCircle(found, markers.DiskCenter, r); ok {
			res.Chosen = c
			res.Refined = true
		}
	}

	res.Hole = HoleRadius(r, geom.HoleRatio)
	res.Image = Annulus(photo, res.Chosen.X, res.Chosen.Y, res.Chosen.R, res.Hole)
	return res, nil
}
