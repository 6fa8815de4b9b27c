package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"

	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// ErrDetectorUnavailable is returned by marker detection in builds without
// OpenCV. It matches services.ErrUnsupported.
var ErrDetectorUnavailable = fmt.Errorf("%w: marker detector unavailable (build with -tags opencv)", services.ErrUnsupported)

// MarkerDetector finds fiducial markers and returns their pixel centres keyed
// by marker id.
type MarkerDetector interface {
	Detect(img image.Image) (map[int]calibration.Point, error)
}

// Calibrator shoots a tray photo and extracts the disc markers from it.
type Calibrator struct {
	camera     Camera
	detector   MarkerDetector
	centerID   int
	edgeID     int
	keepPhotos bool
	logger     *slog.Logger
}

// NewCalibrator wires a calibrator from the vision section.
func NewCalibrator(cfg *config.Config, camera Camera, detector MarkerDetector, logger *slog.Logger) *Calibrator {
	return &Calibrator{
		camera:     camera,
		detector:   detector,
		centerID:   cfg.Vision.CenterMarkerID,
		edgeID:     cfg.Vision.EdgeMarkerID,
		keepPhotos: cfg.Vision.KeepPhotos,
		logger:     logging.ForComponent(logger, cfg.Logging.ComponentLevels, "calibration"),
	}
}

// Calibrate returns both markers or an error; a photo with only one marker
// is rejected as a whole.
func (c *Calibrator) Calibrate(ctx context.Context) (calibration.Markers, error) {
	logger := logging.WithContext(ctx, c.logger)
	path, err := c.camera.Acquire(ctx)
	if err != nil {
		return calibration.Markers{}, err
	}
	if !c.keepPhotos {
		defer os.Remove(path)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return calibration.Markers{}, services.Wrap(services.ErrExternalTool, "calibration", "decode photo", path, err)
	}
	detected, err := c.detector.Detect(img)
	if err != nil {
		return calibration.Markers{}, services.Wrap(services.ErrExternalTool, "calibration", "detect markers", "", err)
	}
	markers, err := calibration.FromDetections(detected, c.centerID, c.edgeID)
	if err != nil {
		return calibration.Markers{}, services.Wrap(services.ErrPrecondition, "calibration", "select markers", "", err)
	}
	logger.Info("markers detected",
		logging.String("disk_center", markers.DiskCenter.String()),
		logging.String("disk_edge", markers.DiskEdge.String()),
		logging.Int("markers_seen", len(detected)),
	)
	return markers, nil
}
