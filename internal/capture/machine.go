package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ripperbot/internal/arm"
	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/disc"
	"ripperbot/internal/display"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// Runner carries one disc through the sequence, either in this process or in
// a worker.
type Runner interface {
	Run(ctx context.Context, job *Job, markers calibration.Markers) error
}

// StorageGate blocks until the capture output root can be written.
type StorageGate interface {
	WaitReady(ctx context.Context) error
	Root() string
}

// Notifier receives capture outcomes worth pushing to an operator.
type Notifier interface {
	NotifySorted(ctx context.Context, captureID, tray string, problems []string) error
	NotifyFatal(ctx context.Context, err error, state string) error
}

// MachineDeps groups the collaborators of a Machine. Storage, Status,
// Recorder, Notifier, Sleep, NewID and Now are optional.
type MachineDeps struct {
	Hardware   Hardware
	Drive      disc.Drive
	Calibrator Calibrator
	Runner     Runner
	Storage    StorageGate
	Status     StatusLine
	Recorder   Recorder
	Notifier   Notifier
	Sleep      arm.Sleeper
	NewID      func() string
	Now        func() time.Time
}

// Machine is the supervisor loop: it establishes the run preconditions once,
// then waits for discs and hands each to the runner until a fault stops it.
type Machine struct {
	hw         Hardware
	drive      disc.Drive
	calibrator Calibrator
	runner     Runner
	storage    StorageGate
	status     StatusLine
	recorder   Recorder
	notifier   Notifier
	sleep      arm.Sleeper
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger

	source           arm.Position
	storageRoot      string
	markersPath      string
	selfCheckDelay   time.Duration
	calibrationDelay time.Duration
}

// NewMachine wires a machine from cfg and deps.
func NewMachine(cfg *config.Config, deps MachineDeps, logger *slog.Logger) *Machine {
	m := &Machine{
		hw:               deps.Hardware,
		drive:            deps.Drive,
		calibrator:       deps.Calibrator,
		runner:           deps.Runner,
		storage:          deps.Storage,
		status:           deps.Status,
		recorder:         deps.Recorder,
		notifier:         deps.Notifier,
		sleep:            deps.Sleep,
		newID:            deps.NewID,
		now:              deps.Now,
		logger:           logging.ForComponent(logger, cfg.Logging.ComponentLevels, "machine"),
		source:           arm.FromPoint(cfg.Positions.SourceTray),
		storageRoot:      cfg.Storage.Root,
		markersPath:      cfg.CalibrationPath(),
		selfCheckDelay:   config.Seconds(cfg.Drive.SelfCheckDelay),
		calibrationDelay: config.Seconds(cfg.Vision.CalibrationDelay),
	}
	if m.status == nil {
		m.status = nopStatus{}
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.sleep == nil {
		m.sleep = arm.Sleep
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.NewString() }
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.storage != nil {
		m.storageRoot = m.storage.Root()
	}
	return m
}

// Run waits for storage, establishes the preconditions and processes discs
// until ctx ends or a capture returns an error.
func (m *Machine) Run(ctx context.Context) error {
	if m.storage != nil {
		m.status.Show(display.LabelWaitStorage)
		if err := m.storage.WaitReady(ctx); err != nil {
			return err
		}
	}
	markers, err := m.Prepare(ctx)
	if err != nil {
		return err
	}
	for {
		job, err := m.RunOnce(ctx, markers)
		if err != nil {
			if ctx.Err() != nil {
				m.logger.Info("capture loop stopped", logging.String("reason", ctx.Err().Error()))
				return ctx.Err()
			}
			m.stop(ctx, job, err)
			return err
		}
		m.notifySorted(ctx, job)
	}
}

// Prepare runs the drive self-check and then calibration, each retried until
// it succeeds. The markers are saved and frozen for the run.
func (m *Machine) Prepare(ctx context.Context) (calibration.Markers, error) {
	if err := m.SelfCheck(ctx); err != nil {
		return calibration.Markers{}, err
	}
	markers, err := m.Calibrate(ctx)
	if err != nil {
		return calibration.Markers{}, err
	}
	if err := calibration.Save(m.markersPath, markers); err != nil {
		return calibration.Markers{}, services.Wrap(services.ErrConfiguration, "machine", "save calibration", m.markersPath, err)
	}
	m.logger.Info("calibration frozen for run",
		logging.String("center", markers.DiskCenter.String()),
		logging.String("edge", markers.DiskEdge.String()),
		logging.String("path", m.markersPath),
	)
	return markers, nil
}

// SelfCheck opens and closes the drive tray, retrying until both succeed.
func (m *Machine) SelfCheck(ctx context.Context) error {
	m.status.Show(display.LabelSelfCheck)
	for attempt := 1; ; attempt++ {
		err := m.drive.OpenTray(ctx)
		if err == nil {
			err = m.drive.CloseTray(ctx)
		}
		if err == nil {
			m.logger.Info("drive self-check passed", logging.Int("attempts", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(m.logger, "drive self-check failed", "self_check_failed",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", m.selfCheckDelay),
			logging.String(logging.FieldErrorHint, "check the drive connection and that the tray moves freely"),
			logging.String(logging.FieldImpact, "capture start is delayed"),
		)
		if err := m.sleep(ctx, m.selfCheckDelay); err != nil {
			return err
		}
	}
}

// Calibrate parks the arm over the source tray, closes the drive and asks
// the calibrator for markers, retrying until it succeeds.
func (m *Machine) Calibrate(ctx context.Context) (calibration.Markers, error) {
	m.status.Show(display.LabelCalibrating)
	reportedUnsupported := false
	for attempt := 1; ; attempt++ {
		markers, err := m.calibrateOnce(ctx)
		if err == nil {
			return markers, nil
		}
		if ctx.Err() != nil {
			return calibration.Markers{}, ctx.Err()
		}
		switch {
		case errors.Is(err, services.ErrUnsupported) && reportedUnsupported:
			m.logger.Debug("calibration still unavailable", logging.Int("attempt", attempt))
		case errors.Is(err, services.ErrUnsupported):
			reportedUnsupported = true
			logging.ErrorWithContext(m.logger, "calibration cannot succeed with this binary", "calibration_unsupported",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "install a build made with -tags opencv"),
				logging.String(logging.FieldImpact, "no disc will be captured"),
				logging.Alert("calibration_unavailable"),
			)
		default:
			logging.WarnWithContext(m.logger, "calibration failed", "calibration_failed",
				logging.Error(err),
				logging.Int("attempt", attempt),
				logging.Duration("retry_in", m.calibrationDelay),
				logging.String(logging.FieldErrorHint, "make sure both markers are visible to the camera"),
				logging.String(logging.FieldImpact, "capture start is delayed"),
			)
		}
		if err := m.sleep(ctx, m.calibrationDelay); err != nil {
			return calibration.Markers{}, err
		}
	}
}

func (m *Machine) calibrateOnce(ctx context.Context) (calibration.Markers, error) {
	if err := m.hw.Motion().MoveAndWait(ctx, m.source); err != nil {
		return calibration.Markers{}, err
	}
	if err := m.drive.CloseTray(ctx); err != nil {
		return calibration.Markers{}, err
	}
	return m.calibrator.Calibrate(ctx)
}

// RunOnce waits for a disc and runs one capture. The returned job is never
// nil once a disc was detected.
func (m *Machine) RunOnce(ctx context.Context, markers calibration.Markers) (*Job, error) {
	m.status.Show(display.LabelIdle)
	reading, err := m.hw.Sensor().WaitForDisc(ctx)
	if err != nil {
		return nil, err
	}
	job := NewJob(m.newID(), m.storageRoot, m.now())
	jobCtx := services.WithCaptureID(ctx, job.ID)
	logging.WithContext(jobCtx, m.logger).Info("disc detected", logging.Float64("signal", reading.Signal))
	if err := m.recorder.Begin(jobCtx, job.ID, string(job.State), job.StartedAt); err != nil {
		m.logger.Warn("history begin failed", logging.Error(err))
	}
	if err := m.runner.Run(jobCtx, job, markers); err != nil {
		return job, err
	}
	return job, nil
}

func (m *Machine) stop(ctx context.Context, job *Job, err error) {
	state := ""
	if job != nil {
		state = string(job.State)
		ctx = services.WithState(services.WithCaptureID(ctx, job.ID), state)
	}
	attrs := []logging.Attr{logging.Error(err)}
	var perr *PickupError
	if errors.As(err, &perr) {
		attrs = append(attrs,
			logging.String("where", perr.Where),
			logging.String("outcome", perr.Result.Outcome.String()),
			logging.String(logging.FieldErrorHint, "clear the arm and trays by hand, then restart"),
		)
	}
	if services.IsFatal(err) {
		logging.FatalWithContext(logging.WithContext(ctx, m.logger), "capture loop stopped by fault", "capture_fatal", attrs...)
	} else {
		logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "capture loop stopped by error", "capture_aborted",
			append(attrs, logging.String(logging.FieldImpact, "capture loop stopped"))...)
	}
	if m.notifier != nil {
		if nerr := m.notifier.NotifyFatal(context.WithoutCancel(ctx), err, state); nerr != nil {
			m.logger.Debug("fatal notification failed", logging.Error(nerr))
		}
	}
}

func (m *Machine) notifySorted(ctx context.Context, job *Job) {
	if m.notifier == nil || job == nil {
		return
	}
	if err := m.notifier.NotifySorted(ctx, job.ID, string(job.Tray), job.Problems); err != nil {
		m.logger.Debug("sorted notification failed", logging.Error(err))
	}
}
