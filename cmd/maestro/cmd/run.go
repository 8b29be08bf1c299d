package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maestro-performance/maestro-go/internal/common/app"
	"github.com/maestro-performance/maestro-go/internal/maestroctl"
)

func runCmd(a *maestroctl.App) *cobra.Command {
	opts := maestroctl.RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a test profile",
		Long: `Runs the warm-up and the measured phase of a test profile against the peers selected by the
configured distribution strategy, then downloads their logs.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initParams(cmd, a.Params); err != nil {
				return err
			}
			if cmd.Flags().Changed("brokerUrl") {
				opts.BrokerURL = a.Params.BrokerConnectionDetails.BrokerURL
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.CreateContextWithShutdown()
			return a.Run(ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "coordinator configuration file")
	cmd.Flags().StringVarP(&opts.ProfilePath, "profile", "p", "", "test profile to run")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "run against simulated peers on an in-process broker")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
