package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"ripperbot/internal/calibration"
	"ripperbot/internal/history"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// Worker exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitPickupFault = 3
)

// ExitCode maps a Process error to the worker exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, services.ErrPickup):
		return ExitPickupFault
	default:
		return ExitFailure
	}
}

// InProcess runs captures with a Processor in the supervisor process.
type InProcess struct {
	Processor *Processor
}

// Run implements Runner.
func (r InProcess) Run(ctx context.Context, job *Job, markers calibration.Markers) error {
	return r.Processor.Process(ctx, job, markers)
}

// ArmOwner is the arm ownership a hand-off transfers.
type ArmOwner interface {
	Device() string
	Release() error
	Reacquire(ctx context.Context) error
}

// CaptureLookup reads the outcome a worker recorded.
type CaptureLookup interface {
	Get(ctx context.Context, id string) (*history.Capture, error)
}

// Handoff runs each capture in a worker process. The arm is released for the
// duration of the worker and always reacquired afterwards.
//
// A worker crash is contained to that process: the supervisor keeps its
// history, lock and notifier, reacquires the arm and records the failure.
// It does not resume the capture. Reacquiring homes the arm with the pump
// off, so a disc the worker was carrying or had loaded is left where it
// fell, and the error stops the run loop for an operator to clear.
type Handoff struct {
	owner       ArmOwner
	binary      string
	configPath  string
	markersPath string
	lookup      CaptureLookup
	logger      *slog.Logger
	stderr      io.Writer
}

// NewHandoff builds a worker runner. configPath may be empty.
func NewHandoff(owner ArmOwner, binary, configPath, markersPath string, lookup CaptureLookup, logger *slog.Logger) *Handoff {
	return &Handoff{
		owner:       owner,
		binary:      binary,
		configPath:  configPath,
		markersPath: markersPath,
		lookup:      lookup,
		logger:      logging.NewComponentLogger(logger, "handoff"),
		stderr:      os.Stderr,
	}
}

// Args returns the worker command line for job.
func (h *Handoff) Args(job *Job) []string {
	args := []string{"capture",
		"--arm-device", h.owner.Device(),
		"--capture-id", job.ID,
		"--storage-path", job.StorageRoot,
		"--calibration-markers", h.markersPath,
	}
	if h.configPath != "" {
		args = append(args, "--config", h.configPath)
	}
	return args
}

// Run implements Runner.
func (h *Handoff) Run(ctx context.Context, job *Job, markers calibration.Markers) error {
	logger := logging.WithContext(ctx, h.logger)
	if err := calibration.Save(h.markersPath, markers); err != nil {
		return services.Wrap(services.ErrConfiguration, "handoff", "write markers", h.markersPath, err)
	}
	if err := h.owner.Release(); err != nil {
		return services.Wrap(services.ErrProtocol, "handoff", "release arm", h.owner.Device(), err)
	}

	runErr := h.runWorker(ctx, logger, job)

	// The arm is taken back even after a failed or cancelled worker.
	reacquireErr := h.owner.Reacquire(context.WithoutCancel(ctx))
	if reacquireErr != nil {
		reacquireErr = services.Wrap(services.ErrConfiguration, "handoff", "reacquire arm", h.owner.Device(), reacquireErr)
	}
	h.sync(ctx, logger, job)
	return errors.Join(runErr, reacquireErr)
}

func (h *Handoff) runWorker(ctx context.Context, logger *slog.Logger, job *Job) error {
	args := h.Args(job)
	logger.Info("handing capture to worker",
		logging.String("binary", h.binary),
		logging.String("args", strings.Join(args, " ")),
	)
	var tail bytes.Buffer
	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Stdout = h.stderr
	cmd.Stderr = io.MultiWriter(h.stderr, &tail)
	err := cmd.Run()
	if err == nil {
		logger.Info("worker finished")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	detail := lastLine(tail.String())
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitPickupFault {
		return services.Wrap(services.ErrPickup, "handoff", "worker", detail, err)
	}
	return services.Wrap(services.ErrExternalTool, "handoff", "worker", detail, err)
}

// sync copies the worker's recorded outcome into job.
func (h *Handoff) sync(ctx context.Context, logger *slog.Logger, job *Job) {
	if h.lookup == nil {
		return
	}
	rec, err := h.lookup.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil || rec == nil {
		logger.Debug("worker outcome unavailable", logging.Error(err))
		return
	}
	job.State = State(rec.State)
	if rec.Tray != "" {
		job.Tray = Tray(rec.Tray)
	}
	job.Imaged = rec.Imaged
	job.CoverPath = rec.CoverPath
	job.CloseFailures = rec.CloseFailures
	job.Problems = nil
	if rec.ErrorMessage != "" {
		job.Problems = strings.Split(rec.ErrorMessage, "; ")
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
