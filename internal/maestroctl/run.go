package maestroctl

import (
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/maestro-performance/maestro-go/internal/common/logging"
	"github.com/maestro-performance/maestro-go/internal/common/maestrocontext"
	"github.com/maestro-performance/maestro-go/internal/coordinator"
	"github.com/maestro-performance/maestro-go/internal/coordinator/configuration"
	"github.com/maestro-performance/maestro-go/internal/coordinator/profile"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/internal/worker/fake"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

const dryRunBrokerURL = "mem://dry-run"

// RunOptions select what the run command executes.
type RunOptions struct {
	ConfigPath  string
	ProfilePath string
	// BrokerURL, when set, replaces the broker of the configuration.
	BrokerURL string
	// DryRun executes the test against simulated peers on an in-process broker.
	DryRun bool
}

// Run executes the test profile with a coordinator configured from the configuration file. It returns an error
// unless the test succeeded.
func (a *App) Run(ctx *maestrocontext.Context, opts RunOptions) error {
	config, err := configuration.Load(viper.New(), opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := logging.ConfigureLogging(config.Logging); err != nil {
		return err
	}
	p, err := profile.Load(opts.ProfilePath)
	if err != nil {
		return err
	}
	if opts.BrokerURL != "" {
		config.Broker.URL = opts.BrokerURL
	}

	transportOpts := append([]transport.Option{}, a.Params.TransportOptions...)
	if opts.DryRun {
		broker := transport.NewMemoryBroker()
		transportOpts = append(transportOpts, transport.WithMemoryBroker(broker))
		config.Broker.URL = dryRunBrokerURL
		config.Reports.Enabled = false
		fleet := &fake.Fleet{}
		defer fleet.Disconnect()
		for _, peer := range dryRunPeers(config) {
			behaviour := fake.DefaultBehaviour(peer.Role)
			if peer.Role == notes.RoleOther {
				// Generic workers only learn whether they send once the balanced strategy assigned them a role.
				behaviour.Outcome = fake.Succeed
			}
			if err := fleet.Add(ctx, dryRunBrokerURL, fake.NewWorker(peer, behaviour), transportOpts...); err != nil {
				return err
			}
		}
		fmt.Fprintf(a.Out, "Dry run with simulated peers %v\n", fleet.Peers())
	}

	app, err := coordinator.StartUp(ctx, config, transportOpts...)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	result, err := app.Coordinator.Run(ctx, p)
	if result != nil {
		a.printResult(result)
	}
	if err != nil {
		return err
	}
	if result.State != coordinator.StateSuccess {
		return errors.Errorf("test %s ended %s", p.Name, result.State)
	}
	return nil
}

// dryRunPeers are the simulated peers matching the configured strategy.
func dryRunPeers(config configuration.CoordinatorConfiguration) []notes.PeerInfo {
	switch config.Strategy.Type {
	case configuration.BalancedStrategy:
		return []notes.PeerInfo{
			{Role: notes.RoleOther, Name: "worker", Host: "worker-1"},
			{Role: notes.RoleOther, Name: "worker", Host: "worker-2"},
		}
	case configuration.StaticStrategy:
		if len(config.Strategy.Peers) > 0 {
			return config.Strategy.Peers
		}
	}
	return []notes.PeerInfo{
		{Role: notes.RoleSender, Name: "sender", Host: "localhost"},
		{Role: notes.RoleReceiver, Name: "receiver", Host: "localhost"},
	}
}

func (a *App) printResult(result *coordinator.Result) {
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	fmt.Fprintf(w, "PHASE\tTEST\tSTATE\tPEERS\tMESSAGE\n")
	for _, phase := range result.Phases {
		peers := "-"
		if phase.Outcomes != nil {
			peers = phase.Outcomes.GetCurrentStateSummary()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", phase.Phase, phase.TestNumber, phase.State, peers, phase.Message)
	}
	_ = w.Flush()
	for _, phase := range result.Phases {
		for _, f := range phase.Failures() {
			fmt.Fprintf(a.Out, "%s: %s %s: %s\n", phase.Phase, f.Peer, f.Status, f.Message)
		}
	}
	fmt.Fprintf(a.Out, "Test %s\n", result.State)
}
