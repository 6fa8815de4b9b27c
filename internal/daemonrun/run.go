// Package daemonrun bootstraps the supervisor process: per-run log files,
// the pid file, the history store and the daemon lifecycle.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/config"
	"ripperbot/internal/daemon"
	"ripperbot/internal/history"
	"ripperbot/internal/logging"
	"ripperbot/internal/notifications"
	"ripperbot/internal/staging"
)

const (
	currentLogName = "ripperbot.log"
	pidFileName    = "ripperbot.pid"

	// staleScratchAge bounds how long a stranded photo survives in the temp dir.
	staleScratchAge = 24 * time.Hour
)

// Options configures supervisor runtime behavior.
type Options struct {
	// ConfigPath is forwarded to isolated capture workers.
	ConfigPath     string
	LogLevel       string
	Development    bool
	SessionOptions []arm.SessionOption
}

// Run starts the supervisor and blocks until a signal arrives or the capture
// loop stops.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("ripperbot-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", currentLogName, err)
	}

	staging.CleanStale(signalCtx, cfg.Paths.TempDir, staleScratchAge, logger)

	pidPath := filepath.Join(cfg.Paths.LogDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(cfg, store, logger, notifications.NewService(cfg), daemon.Options{
		ConfigPath:     opts.ConfigPath,
		SessionOptions: opts.SessionOptions,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("supervisor start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another supervisor and history database access"),
			logging.String(logging.FieldImpact, "no discs will be processed"),
		)
		return err
	}

	logger.Info("ripperbot supervisor started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("log_path", logPath),
	)
	err = d.Run(signalCtx)
	if errors.Is(err, context.Canceled) && signalCtx.Err() != nil {
		err = nil
	}
	logger.Info("ripperbot supervisor shutting down")
	return err
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
