package vision

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ripperbot/internal/config"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// Camera captures a still photo of the tray.
type Camera interface {
	// Acquire shoots a photo and returns the path of the written image.
	Acquire(ctx context.Context) (string, error)
}

// CommandCamera runs the configured capture script as `<binary> <base>` and
// expects `<base>.jpg` afterwards.
type CommandCamera struct {
	binary string
	dir    string
	logger *slog.Logger
}

// NewCamera builds the script-backed camera. Photos land in the temp dir.
func NewCamera(cfg *config.Config, logger *slog.Logger) *CommandCamera {
	return &CommandCamera{
		binary: cfg.Vision.CameraBinary,
		dir:    cfg.Paths.TempDir,
		logger: logging.ForComponent(logger, cfg.Logging.ComponentLevels, "camera"),
	}
}

// Acquire implements Camera.
func (c *CommandCamera) Acquire(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "camera", "prepare temp dir", c.dir, err)
	}
	base := filepath.Join(c.dir, "photo-"+uuid.NewString())

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, base)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "camera", "shoot photo", strings.TrimSpace(stderr.String()), err)
	}

	path := base + ".jpg"
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "camera", "shoot photo", fmt.Sprintf("%s did not produce %s", c.binary, path), err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return "", services.Wrap(services.ErrExternalTool, "camera", "shoot photo", "empty photo "+path, nil)
	}
	logging.WithContext(ctx, c.logger).Debug("photo acquired",
		logging.String("path", path),
		logging.Int("bytes", int(info.Size())),
	)
	return path, nil
}
