package domain

import "time"

// BrokerConnectionDetails tells command line tools how to reach the broker the maestro peers use.
type BrokerConnectionDetails struct {
	BrokerURL      string        `mapstructure:"brokerUrl" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	ClientIDPrefix string        `mapstructure:"clientIdPrefix"`
}
