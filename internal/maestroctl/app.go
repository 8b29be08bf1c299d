// Package maestroctl implements the commands of the maestro command line.
package maestroctl

import (
	"context"
	"io"
	"os"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/client/domain"
	"github.com/maestro-performance/maestro-go/internal/common/util"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
)

// App is the maestro command line application. Output is written to Out, so tests can capture it.
type App struct {
	Params *Params
	Out    io.Writer
}

// Params are the settings shared by every command.
type Params struct {
	BrokerConnectionDetails *domain.BrokerConnectionDetails
	// TransportOptions are appended to the options derived from the connection details.
	TransportOptions []transport.Option
}

func New() *App {
	return &App{
		Params: &Params{BrokerConnectionDetails: &domain.BrokerConnectionDetails{}},
		Out:    os.Stdout,
	}
}

// dial connects to the broker described by the parameters as a coordinator.
func (a *App) dial(ctx context.Context) (*client.Maestro, error) {
	details := a.Params.BrokerConnectionDetails
	opts := []transport.Option{transport.WithClientID(util.NewClientID(details.ClientIDPrefix))}
	if details.ConnectTimeout > 0 {
		opts = append(opts, transport.WithConnectTimeout(details.ConnectTimeout))
	}
	return client.Dial(ctx, details.BrokerURL, append(opts, a.Params.TransportOptions...)...)
}
