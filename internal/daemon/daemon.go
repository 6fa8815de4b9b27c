package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"ripperbot/internal/arm"
	"ripperbot/internal/capture"
	"ripperbot/internal/config"
	"ripperbot/internal/history"
	"ripperbot/internal/logging"
	"ripperbot/internal/notifications"
	"ripperbot/internal/preflight"
	"ripperbot/internal/storage"
	"ripperbot/internal/vision"
)

// Options tunes how the supervisor is assembled.
type Options struct {
	// ConfigPath is forwarded to isolated workers.
	ConfigPath string
	// SessionOptions customise the arm session, e.g. a fake port in tests.
	SessionOptions []arm.SessionOption
}

// Daemon owns the supervisor lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	notifier notifications.Service
	opts     Options

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	HistoryPath  string
	Captures     history.Stats
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, notifier notifications.Service, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and history store")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.ForComponent(logger, cfg.Logging.ComponentLevels, "daemon"),
		store:    store,
		notifier: notifier,
		opts:     opts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and closes history rows left open by a
// previous run.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ripperbot supervisor is already running")
	}

	if n, err := d.store.MarkInterrupted(ctx, "supervisor restarted"); err != nil {
		d.logger.Warn("could not close interrupted captures", logging.Error(err))
	} else if n > 0 {
		logging.WarnWithContext(d.logger, "previous run left captures unfinished", "captures_interrupted",
			logging.Int("count", int(n)),
			logging.String(logging.FieldErrorHint, "check the drive and trays for a stray disc before loading more"),
			logging.String(logging.FieldImpact, "those discs may need to be re-imaged"),
		)
	}

	d.running.Store(true)
	d.logger.Info("ripperbot supervisor started", logging.String("lock", d.lockPath))
	return nil
}

// Stop releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("ripperbot supervisor stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		HistoryPath:  d.store.Path(),
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		st.Captures = stats
	}
	return st
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Run takes the arm and drives the capture machine until ctx ends or a
// fault stops the loop. Start must have succeeded.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not started")
	}
	d.logPreflight(ctx)

	monitor := d.startMonitor(ctx)
	defer monitor.Stop()

	session, err := arm.Discover(ctx, d.cfg, d.logger, d.opts.SessionOptions...)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			d.logger.Warn("release arm on shutdown", logging.Error(err))
		}
	}()
	id := session.Identity()
	d.logger.Info("arm connected",
		logging.String("device", session.Device()),
		logging.String("hardware", id.Hardware),
		logging.String("software", id.Software),
	)
	if err := d.notifier.NotifyRunStarted(ctx, session.Device()); err != nil {
		d.logger.Debug("run started notification failed", logging.Error(err))
	}

	machine, err := d.buildMachine(session, monitor)
	if err != nil {
		return err
	}
	return machine.Run(ctx)
}

func (d *Daemon) buildMachine(session *arm.Session, monitor *storage.Monitor) (*capture.Machine, error) {
	pipeline := BuildPipeline(d.cfg, session, d.store, d.logger)

	detector, err := vision.NewMarkerDetector(d.cfg.Vision)
	if err != nil {
		return nil, err
	}
	calibrator := vision.NewCalibrator(d.cfg, pipeline.Camera, detector, d.logger)

	var runner capture.Runner = capture.InProcess{Processor: pipeline.Processor}
	if d.cfg.Workflow.Isolation == config.IsolationWorker {
		binary := d.cfg.Workflow.WorkerBinary
		if binary == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("resolve worker binary: %w", err)
			}
			binary = exe
		}
		handoffLogger := logging.LevelFor(d.logger, d.cfg.Logging.ComponentLevels, "handoff")
		runner = capture.NewHandoff(session, binary, d.opts.ConfigPath, d.cfg.CalibrationPath(), d.store, handoffLogger)
	}

	manager := storage.NewManager(d.cfg, d.logger, storage.WithMonitor(monitor))
	return capture.NewMachine(d.cfg, capture.MachineDeps{
		Hardware:   pipeline.Hardware,
		Drive:      pipeline.Drive,
		Calibrator: calibrator,
		Runner:     runner,
		Storage:    manager,
		Status:     pipeline.Display,
		Recorder:   d.store,
		Notifier:   d.notifier,
	}, d.logger), nil
}

func (d *Daemon) startMonitor(ctx context.Context) *storage.Monitor {
	if !d.cfg.Storage.UseNetlink {
		return nil
	}
	monitor := storage.NewMonitor(logging.LevelFor(d.logger, d.cfg.Logging.ComponentLevels, "storage"))
	if err := monitor.Start(ctx); err != nil {
		d.logger.Warn("netlink monitor start failed", logging.Error(err))
	}
	return monitor
}

func (d *Daemon) logPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run ripperbot status for the full report"),
			logging.String(logging.FieldImpact, "the run may stall at the failing step"),
		)
	}
	d.logger.Info("preflight snapshot",
		logging.String(logging.FieldEventType, "preflight_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}
