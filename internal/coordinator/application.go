package coordinator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/internal/common/metrics"
	"github.com/maestro-performance/maestro-go/internal/common/util"
	"github.com/maestro-performance/maestro-go/internal/coordinator/configuration"
	"github.com/maestro-performance/maestro-go/internal/coordinator/distribution"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/internal/reports"
)

// Application is a coordinator connected to its broker together with the collaborators its configuration
// enables.
type Application struct {
	Maestro     *client.Maestro
	Coordinator *Coordinator
	Organizer   *reports.Organizer

	shutdown []func()
}

// StartUp connects to the broker and assembles a coordinator from config. opts are applied after the options
// derived from config.
func StartUp(ctx context.Context, config configuration.CoordinatorConfiguration, opts ...transport.Option) (*Application, error) {
	app := &Application{}
	if config.Metrics.Port != 0 {
		app.shutdown = append(app.shutdown, metrics.ServeMetrics(config.Metrics.Port))
	}

	transportOpts := append([]transport.Option{
		transport.WithClientID(util.NewClientID(config.Broker.ClientIDPrefix)),
		transport.WithConnectTimeout(config.Broker.ConnectTimeout),
	}, opts...)
	m, err := client.Dial(ctx, config.Broker.URL, transportOpts...)
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.Maestro = m
	app.shutdown = append(app.shutdown, m.Close)
	if interval := config.Broker.SuperviseInterval; interval > 0 {
		app.shutdown = append(app.shutdown, m.Peer().StartSupervising(interval))
	}
	if config.Metrics.Port != 0 {
		health := m.Peer().Health()
		if err := prometheus.Register(health); err != nil {
			log.WithError(err).Warn("Broker connection health is not exported")
		} else {
			app.shutdown = append(app.shutdown, func() { prometheus.Unregister(health) })
		}
	}

	strategy, err := NewStrategy(m, config)
	if err != nil {
		app.Shutdown()
		return nil, err
	}

	var downloader reports.Downloader
	if config.Reports.Enabled {
		organizer, err := reports.NewOrganizer(config.Reports.Dir)
		if err != nil {
			app.Shutdown()
			return nil, err
		}
		d, err := reports.NewLogTransferDownloader(m, organizer, config.Reports.MaxTransfers)
		if err != nil {
			app.Shutdown()
			return nil, err
		}
		if config.Reports.QuietPeriod > 0 {
			d.SetQuietPeriod(config.Reports.QuietPeriod)
		}
		app.Organizer = organizer
		app.shutdown = append(app.shutdown, d.Close)
		downloader = d
	}

	app.Coordinator = New(m, strategy, downloader, app.Organizer, config)
	log.Infof("Coordinator connected to %s using the %s strategy", config.Broker.URL, strategy.Name())
	return app, nil
}

// Shutdown releases everything StartUp acquired, in reverse order.
func (a *Application) Shutdown() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	a.shutdown = nil
}

// NewStrategy builds the distribution strategy named in config.
func NewStrategy(m *client.Maestro, config configuration.CoordinatorConfiguration) (distribution.Strategy, error) {
	window := config.Strategy.DiscoveryWindow
	if window <= 0 {
		window = 5 * time.Second
	}
	switch config.Strategy.Type {
	case configuration.StaticStrategy, "":
		return distribution.NewStaticStrategy(config.Strategy.Peers), nil
	case configuration.DiscoveryStrategy:
		return distribution.NewDiscoveryStrategy(m, window), nil
	case configuration.BalancedStrategy:
		return distribution.NewBalancedStrategy(m, window, config.ReplyTimeout), nil
	}
	return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
		Name:    "strategy.type",
		Value:   config.Strategy.Type,
		Message: "expected static, discovery or balanced",
	})
}
