// Package calibration holds the camera calibration markers established once
// per run and shared with capture workers through a JSON file.
package calibration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"ripperbot/internal/fileutil"
)

// ErrIncomplete is returned when either marker is missing.
var ErrIncomplete = errors.New("calibration requires both disk_center and disk_edge")

// Point is an integer pixel coordinate. It encodes as a two element JSON array.
type Point struct {
	X int
	Y int
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(float64(p.X-q.X), float64(p.Y-q.Y))
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// MarshalJSON encodes p as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON accepts [x, y] with integer or fractional values; fractions
// are rounded to the nearest pixel.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("pixel coordinate: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("pixel coordinate: want 2 values, got %d", len(raw))
	}
	p.X = int(math.Round(raw[0]))
	p.Y = int(math.Round(raw[1]))
	return nil
}

// Markers are the pixel centres of the disc centre and disc edge fiducials.
type Markers struct {
	DiskCenter Point `json:"disk_center"`
	DiskEdge   Point `json:"disk_edge"`
}

// FromDetections picks the centre and edge markers out of detected marker
// centres keyed by marker id. Both must be present; a partial detection is
// discarded as a whole.
func FromDetections(detected map[int]Point, centerID, edgeID int) (Markers, error) {
	center, okCenter := detected[centerID]
	edge, okEdge := detected[edgeID]
	if !okCenter || !okEdge {
		return Markers{}, fmt.Errorf("%w (center id %d found=%t, edge id %d found=%t)", ErrIncomplete, centerID, okCenter, edgeID, okEdge)
	}
	return Markers{DiskCenter: center, DiskEdge: edge}, nil
}

// Parse decodes markers from JSON, requiring both keys.
func Parse(data []byte) (Markers, error) {
	var raw struct {
		DiskCenter *Point `json:"disk_center"`
		DiskEdge   *Point `json:"disk_edge"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return Markers{}, fmt.Errorf("parse calibration JSON: %w", err)
	}
	if raw.DiskCenter == nil || raw.DiskEdge == nil {
		return Markers{}, ErrIncomplete
	}
	return Markers{DiskCenter: *raw.DiskCenter, DiskEdge: *raw.DiskEdge}, nil
}

// Load reads markers from path.
func Load(path string) (Markers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Markers{}, fmt.Errorf("read calibration file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return Markers{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Save writes markers to path atomically.
func Save(path string, m Markers) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}
