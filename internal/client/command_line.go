package client

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maestro-performance/maestro-go/internal/client/domain"
)

func AddBrokerConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("brokerUrl", "mqtt://localhost:1883", "url of the broker the maestro peers are connected to")
	rootCmd.PersistentFlags().Duration("connectTimeout", 10*time.Second, "how long to wait for the broker connection")
	rootCmd.PersistentFlags().String("clientIdPrefix", "maestro", "prefix of the random client id used on the broker")
	bindFlags(rootCmd.PersistentFlags(), "brokerUrl", "connectTimeout", "clientIdPrefix")
}

func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// LoadCommandlineArgsFromConfigFile reads cfgFile or, when it is empty, $HOME/.maestro.yaml if it exists.
func LoadCommandlineArgsFromConfigFile(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".maestro")
	}

	viper.SetEnvPrefix("MAESTRO")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	} else {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
		default:
			fmt.Println("Can't read config:", err)
			os.Exit(1)
		}
	}
}

func ExtractCommandlineBrokerConnectionDetails() *domain.BrokerConnectionDetails {
	details := &domain.BrokerConnectionDetails{}
	_ = viper.Unmarshal(details)
	return details
}
