package main

import (
	"github.com/spf13/cobra"

	"transmute/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion daemon in the foreground",
		Long: "Run the conversion daemon in the foreground.\n\n" +
			"The daemon serves the HTTP API on paths.api_bind, records finished jobs in\n" +
			"the history database and stops on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: ctx.logLevel("")})
		},
	}
}
