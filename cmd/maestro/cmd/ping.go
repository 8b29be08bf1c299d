package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/maestro-performance/maestro-go/internal/common/app"
	"github.com/maestro-performance/maestro-go/internal/maestroctl"
)

func pingCmd(a *maestroctl.App) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "List the peers connected to the broker",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Ping(app.CreateContextWithShutdown(), window)
		},
	}
	cmd.Flags().DurationVar(&window, "window", 5*time.Second, "how long to wait for replies")
	return cmd
}
