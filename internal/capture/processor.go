package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ripperbot/internal/arm"
	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/disc"
	"ripperbot/internal/display"
	"ripperbot/internal/fileutil"
	"ripperbot/internal/history"
	"ripperbot/internal/logging"
	"ripperbot/internal/pickup"
	"ripperbot/internal/services"
	"ripperbot/internal/vision"
)

// CaptureLogName is the per-capture log written beside the disc image.
const CaptureLogName = "capture.log"

// TrayPhotoName is the kept tray photo when vision.keep_photos is set.
const TrayPhotoName = "tray-photo.jpg"

// Processor carries one disc from the source tray to a sorting tray.
type Processor struct {
	hw       Hardware
	drive    disc.Drive
	camera   vision.Camera
	cover    CoverWriter
	status   StatusLine
	recorder Recorder
	sleep    arm.Sleeper
	logger   *slog.Logger

	positions     positions
	sourceZMin    float64
	driveZMin     float64
	grab          time.Duration
	release       time.Duration
	closeAttempts int
	keepPhotos    bool
	captureLogs   bool
}

type positions struct {
	source arm.Position
	drive  arm.Position
	done   arm.Position
	error  arm.Position
}

// ProcessorDeps groups the collaborators of a Processor.
type ProcessorDeps struct {
	Hardware Hardware
	Drive    disc.Drive
	Camera   vision.Camera
	Cover    CoverWriter
	Status   StatusLine
	Recorder Recorder
	Sleep    arm.Sleeper
}

// NewProcessor wires a processor. Status, Recorder and Sleep are optional.
func NewProcessor(cfg *config.Config, deps ProcessorDeps, logger *slog.Logger) *Processor {
	p := &Processor{
		hw:       deps.Hardware,
		drive:    deps.Drive,
		camera:   deps.Camera,
		cover:    deps.Cover,
		status:   deps.Status,
		recorder: deps.Recorder,
		sleep:    deps.Sleep,
		logger:   logging.ForComponent(logger, cfg.Logging.ComponentLevels, "capture"),
		positions: positions{
			source: arm.FromPoint(cfg.Positions.SourceTray),
			drive:  arm.FromPoint(cfg.Positions.DriveTray),
			done:   arm.FromPoint(cfg.Positions.DoneTray),
			error:  arm.FromPoint(cfg.Positions.ErrorTray),
		},
		sourceZMin:    cfg.Pickup.SourceZMin,
		driveZMin:     cfg.Pickup.DriveZMin,
		grab:          config.Seconds(cfg.Pickup.GrabDelay),
		release:       config.Seconds(cfg.Pickup.ReleaseDelay),
		closeAttempts: cfg.Drive.CloseAttempts,
		keepPhotos:    cfg.Vision.KeepPhotos,
		captureLogs:   cfg.Logging.CaptureLogs,
	}
	if p.status == nil {
		p.status = nopStatus{}
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.sleep == nil {
		p.sleep = arm.Sleep
	}
	if p.closeAttempts < 1 {
		p.closeAttempts = 1
	}
	return p
}

// Process runs the pickup, load, image, cover and sort sequence for job.
// Imaging and cover faults send the disc to the error tray and are not
// returned. A returned error means the loop must stop: a pickup fault
// (*PickupError), an arm link failure, or ctx cancellation.
func (p *Processor) Process(ctx context.Context, job *Job, markers calibration.Markers) error {
	ctx = services.WithCaptureID(ctx, job.ID)
	logger := p.logger
	if p.captureLogs {
		path := filepath.Join(job.Dir(), CaptureLogName)
		if teed, closeLog, err := logging.OpenCaptureLog(logger, path); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, logger), "capture log unavailable", "capture_log_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "capture details only in the main log"),
			)
		} else {
			logger = teed
			defer func() { _ = closeLog() }()
		}
	}
	run := &discRun{Processor: p, job: job, markers: markers, logger: logger, motion: p.hw.Motion()}
	if err := p.recorder.Begin(ctx, job.ID, string(job.State), job.StartedAt); err != nil {
		run.log(ctx).Warn("history begin failed", logging.Error(err))
	}

	return run.execute(ctx)
}

// discRun is the state of one Process call.
type discRun struct {
	*Processor
	job     *Job
	markers calibration.Markers
	logger  *slog.Logger
	motion  Motion
}

func (r *discRun) log(ctx context.Context) *slog.Logger {
	ctx = services.WithState(ctx, string(r.job.State))
	return logging.WithContext(ctx, r.logger)
}

func (r *discRun) enter(ctx context.Context, state State) {
	r.job.State = state
	r.log(ctx).Info("capture state", logging.String("to", string(state)))
	if err := r.recorder.UpdateState(ctx, r.job.ID, string(state)); err != nil {
		r.log(ctx).Debug("history state update failed", logging.Error(err))
	}
}

func (r *discRun) execute(ctx context.Context) error {
	// Pick from the source tray.
	r.status.Show(display.LabelPickupSource)
	if err := r.pick(ctx, "source", r.positions.source, r.sourceZMin, display.LabelPickupFail); err != nil {
		return err
	}
	r.enter(ctx, StatePickedFromSource)

	// Insert into the drive.
	r.status.Show(display.LabelMoveToDrive)
	if err := r.motion.MoveAndWait(ctx, r.positions.source); err != nil {
		return err
	}
	if err := r.drive.OpenTray(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(r.log(ctx), "tray did not open before loading", "tray_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "disc may not seat in the drive"),
		)
	}
	if err := r.motion.MoveAndWait(ctx, r.positions.drive); err != nil {
		return err
	}
	if err := r.drop(ctx); err != nil {
		return err
	}
	if err := r.motion.Origin(ctx); err != nil {
		return err
	}
	r.enter(ctx, StateLoadedInDrive)

	if err := r.closeTray(ctx); err != nil {
		return err
	}
	r.enter(ctx, StateSelfChecked)

	// Image with the arm clear of the camera.
	if err := r.motion.MoveAndWait(ctx, r.positions.source); err != nil {
		return err
	}
	r.status.Show(display.LabelImaging)
	r.enter(ctx, StateImaging)
	if err := r.drive.Image(ctx, r.job.StorageRoot, r.job.ID); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.status.Show(display.LabelImagingFail)
		r.job.fail("imaging failed: " + err.Error())
		logging.ErrorWithContext(r.log(ctx), "imaging failed", "imaging_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "disc goes to the error tray"),
		)
		r.enter(ctx, StateImagedFail)
	} else {
		r.job.Imaged = true
		r.enter(ctx, StateImagedSuccess)
	}

	if err := r.captureCover(ctx); err != nil {
		return err
	}
	r.enter(ctx, StateCoverCaptured)

	// Sort.
	if err := r.pick(ctx, "drive", r.positions.drive, r.driveZMin, display.LabelDrivePickFail); err != nil {
		return err
	}
	r.status.Show(display.LabelMoveToDest)
	if err := r.motion.MoveAndWait(ctx, r.positions.drive); err != nil {
		return err
	}
	dest := r.positions.done
	if r.job.Tray == TrayError {
		dest = r.positions.error
	}
	if err := r.motion.MoveAndWait(ctx, dest); err != nil {
		return err
	}
	if err := r.drop(ctx); err != nil {
		return err
	}
	if err := r.drive.CloseTray(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.job.CloseFailures++
		logging.WarnWithContext(r.log(ctx), "tray did not close after unloading", "tray_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next self-check will retry"),
		)
	}
	if err := r.motion.Origin(ctx); err != nil {
		return err
	}
	r.enter(ctx, StateSorted)
	r.finish(ctx)
	return nil
}

// pick runs the probe and grabs the disc with the pump.
func (r *discRun) pick(ctx context.Context, where string, target arm.Position, zMin float64, failLabel string) error {
	res, err := r.hw.Prober().Pickup(ctx, target, zMin)
	if err != nil {
		return err
	}
	if res.Outcome != pickup.Picked {
		r.status.Show(failLabel)
		perr := &PickupError{Where: where, Result: res}
		r.job.Problems = append(r.job.Problems, perr.Error())
		r.record(ctx, perr)
		return perr
	}
	if err := r.motion.Pump(ctx, true); err != nil {
		return err
	}
	return r.sleep(ctx, r.grab)
}

func (r *discRun) drop(ctx context.Context) error {
	if err := r.motion.Pump(ctx, false); err != nil {
		return err
	}
	return r.sleep(ctx, r.release)
}

// closeTray makes up to closeAttempts attempts, reopening between them.
// Running out of attempts is logged and tolerated.
func (r *discRun) closeTray(ctx context.Context) error {
	for attempt := 1; attempt <= r.closeAttempts; attempt++ {
		err := r.drive.CloseTray(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.job.CloseFailures++
		r.status.Show(display.LabelDriveClose)
		logging.WarnWithContext(r.log(ctx), "drive tray close failed", "tray_close_failed",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.closeAttempts),
		)
		if err := r.drive.OpenTray(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	logging.ErrorWithContext(r.log(ctx), "drive tray would not close", "tray_close_exhausted",
		logging.Int("attempts", r.closeAttempts),
		logging.String(logging.FieldErrorHint, "check the tray for an unseated disc"),
		logging.String(logging.FieldImpact, "imaging will likely fail and sort the disc to the error tray"),
	)
	return nil
}

// captureCover opens the tray, photographs the disc and writes the cover.
func (r *discRun) captureCover(ctx context.Context) error {
	err := r.drive.OpenTray(ctx)
	if err == nil {
		var photo string
		photo, err = r.camera.Acquire(ctx)
		if err == nil {
			var path string
			path, err = r.cover.WriteFromFile(ctx, r.job.Dir(), photo, r.markers)
			r.job.CoverPath = path
			r.disposePhoto(ctx, photo)
		}
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.status.Show(display.LabelCoverFail)
	r.job.fail("cover capture failed: " + err.Error())
	logging.ErrorWithContext(r.log(ctx), "cover capture failed", "cover_capture_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "disc goes to the error tray"),
	)
	return nil
}

// disposePhoto moves the tray photo next to the cover when photos are kept,
// and always clears it from the scratch directory.
func (r *discRun) disposePhoto(ctx context.Context, photo string) {
	if r.keepPhotos {
		dst := filepath.Join(r.job.Dir(), TrayPhotoName)
		if err := fileutil.CopyFileVerified(photo, dst); err != nil {
			logging.WarnWithContext(r.log(ctx), "tray photo not kept", "photo_keep_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the cover is stored without its source photo"),
			)
			return
		}
	}
	if err := os.Remove(photo); err != nil && !os.IsNotExist(err) {
		r.log(ctx).Debug("temp photo not removed", logging.Error(err))
	}
}

func (r *discRun) finish(ctx context.Context) {
	r.record(ctx, nil)
	r.log(ctx).Info("disc sorted",
		logging.String("tray", string(r.job.Tray)),
		logging.Bool("imaged", r.job.Imaged),
		logging.String("cover", r.job.CoverPath),
		logging.Int("close_failures", r.job.CloseFailures),
	)
}

func (r *discRun) record(ctx context.Context, fault error) {
	out := history.Outcome{
		State:         string(r.job.State),
		Tray:          string(r.job.Tray),
		Imaged:        r.job.Imaged,
		CoverPath:     r.job.CoverPath,
		Errors:        r.job.Problems,
		CloseFailures: r.job.CloseFailures,
	}
	if fault != nil {
		out.Tray = ""
	}
	if err := r.recorder.Finish(ctx, r.job.ID, out); err != nil {
		r.log(ctx).Warn("history finish failed", logging.Error(err))
	}
}

type nopStatus struct{}

func (nopStatus) Show(string) {}

type nopRecorder struct{}

func (nopRecorder) Begin(context.Context, string, string, time.Time) error { return nil }
func (nopRecorder) UpdateState(context.Context, string, string) error     { return nil }
func (nopRecorder) Finish(context.Context, string, history.Outcome) error  { return nil }
