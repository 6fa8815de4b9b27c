package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ripperbot/internal/arm"
	"ripperbot/internal/calibration"
	"ripperbot/internal/config"
	"ripperbot/internal/daemon"
	"ripperbot/internal/logging"
	"ripperbot/internal/sensor"
	"ripperbot/internal/vision"
)

func newCalibrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Photograph the closed drive tray and store the calibration markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArm(cmd, ctx, "", func(runCtx context.Context, cfg *config.Config, session *arm.Session) error {
				logger, _ := ctx.ensureLogger()
				pipeline := daemon.BuildPipeline(cfg, session, nil, logger)
				detector, err := vision.NewMarkerDetector(cfg.Vision)
				if err != nil {
					return err
				}
				if err := pipeline.Hardware.Motion().MoveAndWait(runCtx, arm.FromPoint(cfg.Positions.SourceTray)); err != nil {
					return fmt.Errorf("move clear of the drive: %w", err)
				}
				if err := pipeline.Drive.CloseTray(runCtx); err != nil {
					return fmt.Errorf("close drive tray: %w", err)
				}
				markers, err := vision.NewCalibrator(cfg, pipeline.Camera, detector, logger).Calibrate(runCtx)
				if err != nil {
					return err
				}
				path := cfg.CalibrationPath()
				if err := calibration.Save(path, markers); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Disc center: %s\n", markers.DiskCenter)
				fmt.Fprintf(out, "Disc edge:   %s\n", markers.DiskEdge)
				fmt.Fprintf(out, "Radius:      %.1f px\n", markers.DiskCenter.Dist(markers.DiskEdge))
				fmt.Fprintf(out, "Saved to %s\n", path)
				return nil
			})
		},
	}
}

func newSensorCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sensor",
		Short: "Read the source tray disc sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArm(cmd, ctx, "", func(runCtx context.Context, cfg *config.Config, session *arm.Session) error {
				logger, _ := ctx.ensureLogger()
				detector := sensor.NewDetector(session.Arm(), cfg, logger, nil)
				out := cmd.OutOrStdout()
				for {
					m, err := detector.Measure(runCtx)
					if err != nil {
						if watch && runCtx.Err() != nil {
							return nil
						}
						return err
					}
					printMeasurement(out, m, cfg.Sensor.Threshold)
					if !watch {
						return nil
					}
					if err := arm.Sleep(runCtx, config.Seconds(cfg.Sensor.PollInterval)); err != nil {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep sampling until interrupted")
	return cmd
}

func printMeasurement(out io.Writer, m sensor.Measurement, threshold float64) {
	fmt.Fprintf(out, "off=%s on=%s signal=%.1f threshold=%.1f present=%s\n",
		m.Off, m.On, m.Signal, threshold, yesNo(m.Present))
}

func newArmCommand(ctx *commandContext) *cobra.Command {
	var device string

	armCmd := &cobra.Command{
		Use:   "arm",
		Short: "Arm diagnostics",
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Connect to the arm and print its identity and position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArm(cmd, ctx, device, func(runCtx context.Context, cfg *config.Config, session *arm.Session) error {
				id := session.Identity()
				pos, err := session.Arm().Pos(runCtx)
				if err != nil {
					return err
				}
				fields := [][2]string{
					{"Device", session.Device()},
					{"Name", id.DeviceName},
					{"Hardware", id.Hardware},
					{"Software", id.Software},
					{"API", id.API},
					{"UID", id.UID},
					{"Position", pos.String()},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderFields(fields))
				return nil
			})
		},
	}

	home := &cobra.Command{
		Use:   "home",
		Short: "Send the arm to its origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArm(cmd, ctx, device, func(runCtx context.Context, _ *config.Config, session *arm.Session) error {
				if err := session.Arm().Origin(runCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Arm at origin")
				return nil
			})
		},
	}

	armCmd.PersistentFlags().StringVar(&device, "device", "", "Serial device (default: arm.device or auto-detect)")
	armCmd.AddCommand(info, home)
	return armCmd
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "ports",
		Short:       "List serial ports and which ones are probed for the arm",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := arm.ListPorts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}
			fmt.Fprintln(out, renderPorts(ports))
			return nil
		},
	}
}

func renderPorts(ports []arm.PortInfo) string {
	probed := map[string]bool{}
	for _, name := range arm.CandidatePorts(ports) {
		probed[name] = true
	}
	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		usbID := ""
		if p.IsUSB {
			usbID = strings.ToLower(p.VID + ":" + p.PID)
		}
		rows = append(rows, []string{p.Name, usbID, p.Serial, p.Product, yesNo(probed[p.Name])})
	}
	return renderTable([]string{"Port", "USB ID", "Serial", "Product", "Probed"}, rows, nil)
}

// withArm opens an arm session for the duration of fn and always releases it.
func withArm(cmd *cobra.Command, ctx *commandContext, device string, fn func(context.Context, *config.Config, *arm.Session) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	session, err := ctx.openArm(runCtx, device)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("release arm", logging.Error(cerr))
		}
	}()
	return fn(runCtx, cfg, session)
}
