package cover

import (
	"context"
	"image"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/disintegration/imaging"

	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/fileutil"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// Writer computes covers and stores them in a capture directory.
type Writer struct {
	fileName string
	geom     Geometry
	finder   CircleFinder
	logger   *slog.Logger
}

// NewWriter wires a cover writer from configuration. finder may be nil to
// skip circle refinement.
func NewWriter(cfg *config.Config, finder CircleFinder, logger *slog.Logger) *Writer {
	return &Writer{
		fileName: cfg.Cover.FileName,
		geom:     GeometryFromConfig(cfg.Cover),
		finder:   finder,
		logger:   logging.ForComponent(logger, cfg.Logging.ComponentLevels, "cover"),
	}
}

// Path returns the cover location inside captureDir.
func (w *Writer) Path(captureDir string) string {
	return filepath.Join(captureDir, w.fileName)
}

// WriteFromFile decodes the photo at photoPath and writes its cover into
// captureDir, which is normally <storage root>/<capture id>.
func (w *Writer) WriteFromFile(ctx context.Context, captureDir, photoPath string, markers calibration.Markers) (string, error) {
	photo, err := imaging.Open(photoPath)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "cover", "decode photo", photoPath, err)
	}
	return w.Write(ctx, captureDir, photo, markers)
}

// Write computes the cover for photo and stores it as PNG in captureDir.
func (w *Writer) Write(ctx context.Context, captureDir string, photo image.Image, markers calibration.Markers) (string, error) {
	logger := logging.WithContext(ctx, w.logger)
	res, err := Compute(photo, markers, w.geom, w.finder)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "cover", "compute mask", "", err)
	}
	if !res.Refined {
		logger.Info("no circle near calibration, using markers",
			logging.String("circle", res.Calibrated.String()),
			logging.Int("candidates", res.Candidates),
		)
	}

	path := w.Path(captureDir)
	err = fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		return imaging.Encode(out, res.Image, imaging.PNG)
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "cover", "write png", path, err)
	}
	logger.Info("cover written",
		logging.String("path", path),
		logging.String("circle", res.Chosen.String()),
		logging.Int("hole_radius", res.Hole),
		logging.Bool("refined", res.Refined),
	)
	return path, nil
}
