//go:build !opencv

package vision

import (
	"image"

	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/cover"
)

// OpenCVEnabled reports whether the binary was built with the opencv tag.
const OpenCVEnabled = false

type unavailableDetector struct{}

func (unavailableDetector) Detect(image.Image) (map[int]calibration.Point, error) {
	return nil, ErrDetectorUnavailable
}

// NewMarkerDetector returns a detector that always reports
// ErrDetectorUnavailable.
func NewMarkerDetector(config.Vision) (MarkerDetector, error) {
	return unavailableDetector{}, nil
}

// NewCircleFinder returns the pure-Go gradient Hough finder.
func NewCircleFinder(cfg config.Cover) cover.CircleFinder {
	return cover.NewHoughFinder(cfg)
}
