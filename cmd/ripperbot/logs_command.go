package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ripperbot/internal/capture"
	"ripperbot/internal/config"
	"ripperbot/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var captureID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the supervisor log or one capture's log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logPath(cfg, captureID)
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tail) == 0 && offset == 0 && !follow {
				fmt.Fprintf(out, "No log at %s\n", path)
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, 250*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
			if cmd.Context().Err() != nil && errors.Is(err, cmd.Context().Err()) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&captureID, "capture", "", "Show the log kept next to this capture's image")
	return cmd
}

// logPath picks the supervisor's current-log pointer, or the capture log
// written into the capture's storage directory.
func logPath(cfg *config.Config, captureID string) string {
	if id := strings.TrimSpace(captureID); id != "" {
		return filepath.Join(cfg.CaptureDir(id), capture.CaptureLogName)
	}
	return filepath.Join(cfg.Paths.LogDir, "ripperbot.log")
}
