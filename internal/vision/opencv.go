//go:build opencv

package vision

import (
	"fmt"
	"image"
	"math"
	"strings"

	"gocv.io/x/gocv"

	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/cover"
)

// OpenCVEnabled reports whether the binary was built with the opencv tag.
const OpenCVEnabled = true

const (
	houghMedianKernel = 5
	houghCannyLow     = 100
	houghCannyHigh    = 200
	houghDP           = 1
)

var arucoDictionaries = map[string]gocv.ArucoDictionaryCode{
	"DICT_4X4_50":   gocv.ArucoDict4x4_50,
	"DICT_4X4_100":  gocv.ArucoDict4x4_100,
	"DICT_5X5_100":  gocv.ArucoDict5x5_100,
	"DICT_5X5_250":  gocv.ArucoDict5x5_250,
	"DICT_6X6_50":   gocv.ArucoDict6x6_50,
	"DICT_6X6_100":  gocv.ArucoDict6x6_100,
	"DICT_6X6_250":  gocv.ArucoDict6x6_250,
	"DICT_6X6_1000": gocv.ArucoDict6x6_1000,
}

type arucoDetector struct {
	dict gocv.ArucoDictionaryCode
}

// NewMarkerDetector returns an ArUco detector for the configured dictionary.
func NewMarkerDetector(cfg config.Vision) (MarkerDetector, error) {
	code, ok := arucoDictionaries[strings.ToUpper(cfg.ArucoDictionary)]
	if !ok {
		return nil, fmt.Errorf("unsupported aruco dictionary %q", cfg.ArucoDictionary)
	}
	return arucoDetector{dict: code}, nil
}

func (d arucoDetector) Detect(img image.Image) (map[int]calibration.Point, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert photo: %w", err)
	}
	defer mat.Close()

	detector := gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(d.dict), gocv.NewArucoDetectorParameters())
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(mat)
	found := make(map[int]calibration.Point, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) == 0 {
			continue
		}
		var sx, sy float64
		for _, p := range corners[i] {
			sx += float64(p.X)
			sy += float64(p.Y)
		}
		n := float64(len(corners[i]))
		found[id] = calibration.Point{X: int(math.Round(sx / n)), Y: int(math.Round(sy / n))}
	}
	return found, nil
}

type houghCircleFinder struct {
	voteThreshold float64
	minDistance   int
	maxCircles    int
}

// NewCircleFinder returns the OpenCV median/Canny/Hough circle search.
func NewCircleFinder(cfg config.Cover) cover.CircleFinder {
	return houghCircleFinder{
		voteThreshold: cfg.VoteThreshold,
		minDistance:   cfg.MinDistance,
		maxCircles:    cfg.MaxCircles,
	}
}

func (f houghCircleFinder) FindCircles(img image.Image, minR, maxR int) ([]cover.Circle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert photo: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.MedianBlur(gray, &blurred, houghMedianKernel)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, houghCannyLow, houghCannyHigh)

	circles := gocv.NewMat()
	defer circles.Close()
	accumulator := math.Max(1, f.voteThreshold*2*math.Pi*float64(minR))
	gocv.HoughCirclesWithParams(edges, &circles, gocv.HoughGradient,
		houghDP, float64(f.minDistance), houghCannyHigh, accumulator, minR, maxR)

	if circles.Empty() || circles.Cols() == 0 {
		return nil, nil
	}
	out := make([]cover.Circle, 0, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		if f.maxCircles > 0 && len(out) >= f.maxCircles {
			break
		}
		out = append(out, cover.Circle{
			X: int(math.Round(float64(circles.GetFloatAt(0, i*3)))),
			Y: int(math.Round(float64(circles.GetFloatAt(0, i*3+1)))),
			R: int(math.Round(float64(circles.GetFloatAt(0, i*3+2)))),
		})
	}
	return out, nil
}
