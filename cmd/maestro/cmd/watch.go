package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maestro-performance/maestro-go/internal/common/app"
	"github.com/maestro-performance/maestro-go/internal/maestroctl"
)

func watchCmd(a *maestroctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the test outcomes reported by the peers",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := cmd.Flags().GetBool("raw")
			if err != nil {
				return err
			}
			exitAfter, err := cmd.Flags().GetInt("exit-after")
			if err != nil {
				return err
			}
			return a.Watch(app.CreateContextWithShutdown(), raw, exitAfter)
		},
	}
	cmd.Flags().Bool("raw", false, "Output raw notes")
	cmd.Flags().Int("exit-after", 0, "Exit once this many peers reported an outcome")
	return cmd
}
