package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ripperbot/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			captures, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(captures) == 0 {
				fmt.Fprintln(out, "No captures recorded")
				return nil
			}
			fmt.Fprintln(out, renderCaptures(captures))
			fmt.Fprintln(out, summarizeStats(stats))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of captures to show")
	return cmd
}

func renderCaptures(captures []history.Capture) string {
	rows := make([][]string, 0, len(captures))
	for _, c := range captures {
		rows = append(rows, []string{
			c.ID,
			formatTimestamp(c.StartedAt),
			c.State,
			c.Tray,
			yesNo(c.Imaged),
			strconv.Itoa(c.CloseFailures),
			truncate(c.ErrorMessage, 60),
		})
	}
	return renderTable(
		[]string{"ID", "Started", "State", "Tray", "Imaged", "Close Fails", "Problems"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func summarizeStats(stats history.Stats) string {
	parts := []string{
		fmt.Sprintf("%d total", stats.Total),
		fmt.Sprintf("%d done", stats.Done),
		fmt.Sprintf("%d error", stats.Error),
	}
	if stats.InFlight > 0 {
		parts = append(parts, fmt.Sprintf("%d in flight", stats.InFlight))
	}
	line := "Captures: " + strings.Join(parts, ", ")
	if !stats.LastFinish.IsZero() {
		line += " (last finished " + formatTimestamp(stats.LastFinish) + ")"
	}
	return line
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
