package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ripperbot/internal/daemon"
	"ripperbot/internal/logging"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			d, err := daemon.New(cfg, store, logging.NewNop(), nil, daemon.Options{})
			if err != nil {
				return err
			}
			defer d.Close()

			sent, message, err := d.TestNotification(cmd.Context())
			if err != nil {
				if message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), message)
				}
				return err
			}
			switch {
			case message != "":
				fmt.Fprintln(cmd.OutOrStdout(), message)
			case sent:
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
			}
			return nil
		},
	}
}
