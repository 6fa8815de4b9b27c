package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ripperbot/internal/logging"
	"ripperbot/internal/staging"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stranded photos from the temp directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				entries, err := staging.List(cfg.Paths.TempDir)
				if err != nil {
					return err
				}
				cutoff := time.Now().Add(-maxAge)
				var rows [][]string
				for _, e := range entries {
					if e.ModTime.Before(cutoff) {
						rows = append(rows, []string{e.Name, humanize.Time(e.ModTime), humanize.Bytes(uint64(e.Size))})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "Nothing to remove")
					return nil
				}
				fmt.Fprintln(out, renderTable([]string{"Entry", "Modified", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			}
			result := staging.CleanStale(cmd.Context(), cfg.Paths.TempDir, maxAge, logging.NewNop())
			fmt.Fprintf(out, "Removed %d entries (%s)\n", len(result.Removed), humanize.Bytes(uint64(result.Freed)))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  failed: %s: %v\n", e.Path, e.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d entries could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove entries older than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed")
	return cmd
}
