// Package configuration holds the settings of the test coordinator.
package configuration

import (
	"time"

	"github.com/spf13/viper"

	"github.com/maestro-performance/maestro-go/internal/common/config"
	"github.com/maestro-performance/maestro-go/internal/common/logging"
)

// SetDefaults registers the default of every optional setting in v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("broker.url", "mqtt://localhost:1883")
	v.SetDefault("broker.connectTimeout", 10*time.Second)
	v.SetDefault("broker.clientIdPrefix", "maestro")
	v.SetDefault("broker.superviseInterval", 5*time.Second)
	v.SetDefault("strategy.type", StaticStrategy)
	v.SetDefault("strategy.discoveryWindow", 5*time.Second)
	v.SetDefault("reports.enabled", true)
	v.SetDefault("reports.dir", "reports")
	v.SetDefault("reports.maxTransfers", 64)
	v.SetDefault("reports.timeout", 2*time.Minute)
	v.SetDefault("reports.quietPeriod", time.Second)
	v.SetDefault("slack", 10*time.Second)
	v.SetDefault("coolDown", 10*time.Second)
	v.SetDefault("inflightDelay", 5*time.Second)
	v.SetDefault("statsInterval", 5*time.Second)
	v.SetDefault("replyTimeout", 10*time.Second)

	defaultLogging := logging.DefaultConfig()
	v.SetDefault("logging.level", defaultLogging.Level)
	v.SetDefault("logging.format", defaultLogging.Format)
}

// Load reads the coordinator configuration from path, which may be empty to use only defaults and environment.
func Load(v *viper.Viper, path string) (CoordinatorConfiguration, error) {
	SetDefaults(v)
	var c CoordinatorConfiguration
	if err := config.LoadConfig(v, &c, path); err != nil {
		return CoordinatorConfiguration{}, err
	}
	return c, nil
}
