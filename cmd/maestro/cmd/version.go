package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maestro-performance/maestro-go/internal/maestroctl"
)

func versionCmd(a *maestroctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Version()
		},
	}
	return cmd
}
