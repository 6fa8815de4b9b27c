package disc

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"ripperbot/internal/config"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// Drive defines the tray and imaging operations the capture loop needs.
type Drive interface {
	OpenTray(ctx context.Context) error
	CloseTray(ctx context.Context) error
	// Image archives the loaded disc under storageRoot/captureID.
	Image(ctx context.Context, storageRoot, captureID string) error
}

// CommandDrive implements Drive with eject and the archiver script.
type CommandDrive struct {
	device   string
	eject    string
	archiver string
	logger   *slog.Logger
}

// NewDrive builds a command-backed drive from the drive section.
func NewDrive(cfg *config.Config, logger *slog.Logger) *CommandDrive {
	return &CommandDrive{
		device:   cfg.Drive.Device,
		eject:    cfg.Drive.EjectBinary,
		archiver: cfg.Drive.ArchiverBinary,
		logger:   logging.ForComponent(logger, cfg.Logging.ComponentLevels, "drive"),
	}
}

// Device returns the drive device path.
func (d *CommandDrive) Device() string {
	return d.device
}

// OpenTray runs `eject <device>`.
func (d *CommandDrive) OpenTray(ctx context.Context) error {
	return d.run(ctx, "open tray", d.eject, d.device)
}

// CloseTray runs `eject -t <device>`.
func (d *CommandDrive) CloseTray(ctx context.Context) error {
	return d.run(ctx, "close tray", d.eject, "-t", d.device)
}

// Image runs `<archiver> -o <root> -i <id> <device>`.
func (d *CommandDrive) Image(ctx context.Context, storageRoot, captureID string) error {
	return d.run(ctx, "image disc", d.archiver, "-o", storageRoot, "-i", captureID, d.device)
}

// Status reads the tray state without actuating it.
func (d *CommandDrive) Status() (DriveStatus, error) {
	return CheckDriveStatus(d.device)
}

func (d *CommandDrive) run(ctx context.Context, operation, binary string, args ...string) error {
	logger := logging.WithContext(ctx, d.logger)
	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		logging.WarnWithContext(logger, operation+" failed", "drive_command_failed",
			logging.String("command", binary+" "+strings.Join(args, " ")),
			logging.String("stderr", detail),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the drive and the "+binary+" tool"),
		)
		return services.Wrap(services.ErrExternalTool, "drive", operation, detail, err)
	}
	logger.Debug(operation+" completed",
		logging.String("command", binary+" "+strings.Join(args, " ")),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}
