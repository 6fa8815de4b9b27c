// Package display writes short phase labels to the status line file read by
// the front panel.
package display

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ripperbot/internal/config"
	"ripperbot/internal/logging"
)

// Phase labels shown while a disc is processed.
const (
	LabelIdle          = "READY"
	LabelWaitStorage   = "WAIT STORAGE"
	LabelSelfCheck     = "DRIVE CHECK"
	LabelCalibrating   = "CALIBRATING"
	LabelPickupSource  = "PICKUP SRC TRAY"
	LabelMoveToDrive   = "MOVE TO DRIVE"
	LabelImaging       = "IMAGING ..."
	LabelImagingFail   = "IMAGING FAIL"
	LabelCoverFail     = "ERR ACQ. COVER IMG"
	LabelMoveToDest    = "MOVE TO DST TRAY"
	LabelDriveClose    = "ERR DRIVE CLOSE"
	LabelPickupFail    = "ERR PICKUP DISK"
	LabelDrivePickFail = "ERR DISK PICKUP"
)

// Line writes labels to a file, one label per write. A disabled line only
// logs.
type Line struct {
	path    string
	enabled bool
	upper   cases.Caser
	logger  *slog.Logger

	mu   sync.Mutex
	last string
}

// New builds a status line from the display section.
func New(cfg *config.Config, logger *slog.Logger) *Line {
	return &Line{
		path:    cfg.Display.Path,
		enabled: cfg.Display.Enabled && strings.TrimSpace(cfg.Display.Path) != "",
		upper:   cases.Upper(language.Und),
		logger:  logging.ForComponent(logger, cfg.Logging.ComponentLevels, "display"),
	}
}

// Show replaces the status line. Write failures are logged, never returned,
// because the panel is informational.
func (l *Line) Show(label string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	text := l.upper.String(strings.Join(strings.Fields(label), " "))
	if text == l.last {
		return
	}
	l.last = text
	l.logger.Debug("status line", logging.String("label", text))
	if !l.enabled {
		return
	}
	if err := l.write(text); err != nil {
		logging.WarnWithContext(l.logger, "status line write failed", "display_write_failed",
			logging.Error(err),
			logging.String("path", l.path),
			logging.String(logging.FieldImpact, "front panel shows a stale phase"),
		)
	}
}

// Last returns the most recent label.
func (l *Line) Last() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *Line) write(text string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create display dir: %w", err)
	}
	return os.WriteFile(l.path, []byte(text+"\n"), 0o644)
}
