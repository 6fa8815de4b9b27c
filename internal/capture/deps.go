package capture

import (
	"context"
	"log/slog"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/history"
	"ripperbot/internal/pickup"
	"ripperbot/internal/sensor"
)

// Motion is the arm surface the capture sequence drives.
type Motion interface {
	MoveAndWait(ctx context.Context, p arm.Position) error
	Origin(ctx context.Context) error
	Pump(ctx context.Context, on bool) error
}

// Prober grasps a disc at an unknown height.
type Prober interface {
	Pickup(ctx context.Context, target arm.Position, zMin float64) (pickup.Result, error)
}

// DiscSensor reports when a disc sits in the source tray.
type DiscSensor interface {
	WaitForDisc(ctx context.Context) (sensor.Measurement, error)
}

// Hardware hands out the arm-backed collaborators. Callers ask again after
// every hand-off because reacquiring the arm replaces it.
type Hardware interface {
	Motion() Motion
	Sensor() DiscSensor
	Prober() Prober
}

// Calibrator establishes the calibration markers.
type Calibrator interface {
	Calibrate(ctx context.Context) (calibration.Markers, error)
}

// CoverWriter turns a tray photo into the stored cover image.
type CoverWriter interface {
	WriteFromFile(ctx context.Context, captureDir, photoPath string, markers calibration.Markers) (string, error)
}

// StatusLine shows phase labels to the operator.
type StatusLine interface {
	Show(label string)
}

// Recorder persists capture progress.
type Recorder interface {
	Begin(ctx context.Context, id, state string, startedAt time.Time) error
	UpdateState(ctx context.Context, id, state string) error
	Finish(ctx context.Context, id string, out history.Outcome) error
}

// SessionHardware builds collaborators from the arm currently held by a
// session.
type SessionHardware struct {
	session *arm.Session
	cfg     *config.Config
	logger  *slog.Logger
	sleep   arm.Sleeper
}

// NewSessionHardware binds collaborators to session.
func NewSessionHardware(session *arm.Session, cfg *config.Config, logger *slog.Logger) *SessionHardware {
	return &SessionHardware{session: session, cfg: cfg, logger: logger, sleep: arm.Sleep}
}

// Motion implements Hardware.
func (h *SessionHardware) Motion() Motion {
	return h.session.Arm()
}

// Sensor implements Hardware.
func (h *SessionHardware) Sensor() DiscSensor {
	return sensor.NewDetector(h.session.Arm(), h.cfg, h.logger, h.sleep)
}

// Prober implements Hardware.
func (h *SessionHardware) Prober() Prober {
	return pickup.NewProber(h.session.Arm(), h.cfg, h.logger)
}
