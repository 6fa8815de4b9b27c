package main

import (
	"fmt"
	"io"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"ripperbot/internal/config"
	"ripperbot/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show supervisor state, readiness checks and capture totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			kind, message := supervisorStatus(supervisorRunning(cfg))
			lines := renderSectionHeader("Supervisor", colorize)
			lines = append(lines, renderStatusLine("ripperbot", kind, message, colorize))
			writeLines(out, lines)

			results := preflight.RunAll(cmd.Context(), cfg)
			fmt.Fprintln(out)
			writeLines(out, preflightLines(results, colorize))

			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			writeLines(out, renderSectionHeader("History", colorize))
			fmt.Fprintln(out, statusIndent+summarizeStats(stats))
			return nil
		},
	}
}

// supervisorRunning probes the supervisor lock without holding it.
func supervisorRunning(cfg *config.Config) (bool, error) {
	lock := flock.New(cfg.DaemonLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	return false, lock.Unlock()
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	failed := len(preflight.Failed(results))
	lines := renderSectionHeader("Checks", colorize)
	if failed == 0 {
		lines = append(lines, renderStatusLine("Summary", statusOK, fmt.Sprintf("%d checks passed", len(results)), colorize))
	} else {
		lines = append(lines, renderStatusLine("Summary", statusError, fmt.Sprintf("%d of %d checks failed", failed, len(results)), colorize))
	}
	for _, r := range results {
		lines = append(lines, renderStatusLine(r.Name, checkKind(r), r.Detail, colorize))
	}
	return lines
}

func writeLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
