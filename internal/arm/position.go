package arm

import (
	"fmt"
	"strconv"

	"github.com/golang/geo/r3"

	"ripperbot/internal/config"
)

// Position is an arm-frame coordinate in millimetres.
type Position = r3.Vector

// FromPoint converts a configured [x, y, z] triple into a Position.
func FromPoint(p config.Point3) Position {
	return Position{X: p[0], Y: p[1], Z: p[2]}
}

// WithZ returns p moved to height z.
func WithZ(p Position, z float64) Position {
	return Position{X: p.X, Y: p.Y, Z: z}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatXYZF(p Position, speed float64) string {
	return fmt.Sprintf("X%s Y%s Z%s F%s", formatNumber(p.X), formatNumber(p.Y), formatNumber(p.Z), formatNumber(speed))
}
