package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/maestroctl"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "maestro",
		Short:        "maestro coordinates distributed performance tests of messaging systems.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client.LoadCommandlineArgsFromConfigFile(cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "maestroctl-config", "", "config file for the command line (default is $HOME/.maestro.yaml)")
	client.AddBrokerConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		runCmd(maestroctl.New()),
		pingCmd(maestroctl.New()),
		watchCmd(maestroctl.New()),
		versionCmd(maestroctl.New()),
	)
	return cmd
}

// initParams fills the shared parameters from flags, environment and config file.
func initParams(cmd *cobra.Command, params *maestroctl.Params) error {
	params.BrokerConnectionDetails = client.ExtractCommandlineBrokerConnectionDetails()
	return nil
}
