package main

import (
	"github.com/spf13/cobra"

	"ripperbot/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture supervisor in the foreground",
		Long: "Run the capture supervisor: wait for storage, self-check the drive, calibrate the\n" +
			"camera, then image every disc placed in the source tray until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := daemonrun.Options{
				ConfigPath:     ctx.configPath,
				Development:    development,
				SessionOptions: ctx.sessionOptions,
			}
			if ctx.logLevelFlag != nil {
				opts.LogLevel = *ctx.logLevelFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}
