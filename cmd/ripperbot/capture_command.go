package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ripperbot/internal/calibration"
	"ripperbot/internal/capture"
	"ripperbot/internal/daemon"
	"ripperbot/internal/logging"
	"ripperbot/internal/services"
)

// newCaptureCommand is the isolated worker the supervisor launches for one
// disc. Its exit status tells the supervisor whether the loop may continue.
func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var device, captureID, storagePath, markersPath string

	cmd := &cobra.Command{
		Use:    "capture",
		Short:  "Process one disc already sitting in the source tray",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			missing := missingFlags(map[string]string{
				"--arm-device":          device,
				"--capture-id":          captureID,
				"--storage-path":        storagePath,
				"--calibration-markers": markersPath,
			})
			if len(missing) > 0 {
				return &exitError{code: capture.ExitFailure, err: fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))}
			}
			if err := runCapture(cmd, ctx, device, captureID, storagePath, markersPath); err != nil {
				return &exitError{code: capture.ExitCode(err), err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "arm-device", "", "Serial device of the arm")
	cmd.Flags().StringVar(&captureID, "capture-id", "", "Capture identifier assigned by the supervisor")
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "Storage root for the disc image and cover")
	cmd.Flags().StringVar(&markersPath, "calibration-markers", "", "Calibration markers file")
	return cmd
}

func runCapture(cmd *cobra.Command, ctx *commandContext, device, captureID, storagePath, markersPath string) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "capture", "load config", "configuration could not be loaded", err)
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	markers, err := calibration.Load(markersPath)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "capture", "load markers", "calibration markers unreadable", err)
	}
	store, err := ctx.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := ctx.openArm(signalCtx, device)
	if err != nil {
		return services.Wrap(services.ErrProtocol, "capture", "open arm", "arm did not answer on "+device, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("release arm", logging.Error(cerr))
		}
	}()

	pipeline := daemon.BuildPipeline(cfg, session, store, logger)
	job := capture.NewJob(captureID, storagePath, time.Now())
	err = pipeline.Processor.Process(signalCtx, job, markers)
	if err != nil && errors.Is(err, signalCtx.Err()) {
		logger.Info("capture interrupted", logging.String("capture_id", captureID))
	}
	return err
}

func missingFlags(values map[string]string) []string {
	var missing []string
	for _, name := range []string{"--arm-device", "--capture-id", "--storage-path", "--calibration-markers"} {
		if v, ok := values[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
