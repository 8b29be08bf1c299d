package configuration

import (
	"time"

	"github.com/maestro-performance/maestro-go/internal/common/logging"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

const (
	StaticStrategy    = "static"
	DiscoveryStrategy = "discovery"
	BalancedStrategy  = "balanced"
)

type BrokerConfiguration struct {
	// URL of the broker carrying the control messages, e.g. mqtt://localhost:1883 or nats://localhost:4222.
	URL            string        `validate:"required"`
	ConnectTimeout time.Duration `validate:"gt=0"`
	ClientIDPrefix string
	// How often the connection is checked and restored when lost. Zero disables reconnecting.
	SuperviseInterval time.Duration `validate:"gte=0"`
}

type StrategyConfiguration struct {
	Type string `validate:"oneof=static discovery balanced"`
	// Peers used by the static strategy.
	Peers []notes.PeerInfo `validate:"required_if=Type static,dive"`
	// How long discovery waits for ping replies.
	DiscoveryWindow time.Duration `validate:"gt=0"`
}

type ReportsConfiguration struct {
	Enabled bool
	Dir     string `validate:"required_if=Enabled true"`
	// MaxTransfers bounds the number of log files reassembled concurrently.
	MaxTransfers int `validate:"gte=0"`
	// How long to wait for the peers to send their logs after each phase.
	Timeout     time.Duration `validate:"gt=0"`
	QuietPeriod time.Duration `validate:"gte=0"`
}

type MetricsConfiguration struct {
	// Port of the prometheus endpoint. Zero disables it.
	Port uint16
}

type CoordinatorConfiguration struct {
	Broker   BrokerConfiguration
	Strategy StrategyConfiguration
	Reports  ReportsConfiguration
	Metrics  MetricsConfiguration
	Logging  logging.Config

	// Added to the estimated completion time of a phase before it times out.
	Slack time.Duration `validate:"gte=0"`
	// Pause between warm-up and the measured run.
	CoolDown time.Duration `validate:"gte=0"`
	// Pause between stopping the senders and stopping everything else, so messages in flight can arrive.
	InflightDelay time.Duration `validate:"gte=0"`
	// When positive, receivers are asked to drain their queues for this long after each phase.
	DrainTimeout time.Duration `validate:"gte=0"`
	// How often peers are asked for statistics while a phase runs. Zero disables polling.
	StatsInterval time.Duration `validate:"gte=0"`
	// How long to wait for the replies to Set and other configuration requests.
	ReplyTimeout time.Duration `validate:"gt=0"`
}
