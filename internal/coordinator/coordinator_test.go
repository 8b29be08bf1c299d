package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/client/domain"
	"github.com/maestro-performance/maestro-go/internal/common/maestrocontext"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/internal/coordinator/configuration"
	"github.com/maestro-performance/maestro-go/internal/coordinator/distribution"
	"github.com/maestro-performance/maestro-go/internal/coordinator/profile"
	"github.com/maestro-performance/maestro-go/internal/exchange/collector"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/internal/reports"
	"github.com/maestro-performance/maestro-go/internal/worker/fake"
	"github.com/maestro-performance/maestro-go/pkg/notes"
	"github.com/maestro-performance/maestro-go/pkg/topics"
)

var (
	sender1    = notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "h1"}
	sender2    = notes.PeerInfo{Role: notes.RoleSender, Name: "sender", Host: "h2"}
	receiver1  = notes.PeerInfo{Role: notes.RoleReceiver, Name: "receiver", Host: "h3"}
	inspector1 = notes.PeerInfo{Role: notes.RoleInspector, Name: "inspector", Host: "h4"}
)

func testConfig() configuration.CoordinatorConfiguration {
	return configuration.CoordinatorConfiguration{
		Broker:        configuration.BrokerConfiguration{URL: "mem://test", ConnectTimeout: time.Second},
		Strategy:      configuration.StrategyConfiguration{Type: configuration.StaticStrategy},
		Reports:       configuration.ReportsConfiguration{Timeout: time.Second},
		Slack:         200 * time.Millisecond,
		ReplyTimeout:  time.Second,
		StatsInterval: 0,
	}
}

func testProfile(duration string, rate int) *profile.Profile {
	p := profile.Default()
	p.Name = "fixed-rate"
	p.BrokerURL = "amqp://sut:5672/test.performance.queue"
	p.Duration = profile.MustParseDuration(duration)
	p.Rate = rate
	p.ParallelCount = 2
	return p
}

type testSetup struct {
	maestro     *client.Maestro
	fleet       *fake.Fleet
	coordinator *Coordinator
	dir         string
}

type setupOption func(*testSetup) (reports.Downloader, *reports.Organizer)

// withReports stores downloaded logs below a temporary directory.
func withReports(t *testing.T) setupOption {
	return func(s *testSetup) (reports.Downloader, *reports.Organizer) {
		s.dir = t.TempDir()
		o, err := reports.NewOrganizer(s.dir)
		require.NoError(t, err)
		d, err := reports.NewLogTransferDownloader(s.maestro, o, 0)
		require.NoError(t, err)
		d.SetQuietPeriod(20 * time.Millisecond)
		t.Cleanup(d.Close)
		return d, o
	}
}

func setup(t *testing.T, config configuration.CoordinatorConfiguration, workers map[notes.PeerInfo]fake.Behaviour, opts ...setupOption) *testSetup {
	b := transport.NewMemoryBroker()
	m, err := client.Dial(context.Background(), "mem://test", transport.WithMemoryBroker(b))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	s := &testSetup{maestro: m, fleet: &fake.Fleet{}}
	var peers []notes.PeerInfo
	for info, behaviour := range workers {
		require.NoError(t, s.fleet.Add(context.Background(), "mem://test", fake.NewWorker(info, behaviour), transport.WithMemoryBroker(b)))
		peers = append(peers, info)
	}
	t.Cleanup(s.fleet.Disconnect)

	var downloader reports.Downloader
	var organizer *reports.Organizer
	for _, opt := range opts {
		downloader, organizer = opt(s)
	}
	s.coordinator = New(m, distribution.NewStaticStrategy(peers), downloader, organizer, config)
	return s
}

func succeedAfter(d time.Duration) fake.Behaviour {
	return fake.Behaviour{Outcome: fake.Succeed, Delay: d}
}

func failAfter(d time.Duration) fake.Behaviour {
	return fake.Behaviour{Outcome: fake.Fail, Delay: d, FailMessage: "latency above the limit"}
}

func crashAfter(d time.Duration) fake.Behaviour {
	return fake.Behaviour{Outcome: fake.Crash, Delay: d}
}

func replyAfter(outcome fake.Outcome, d time.Duration) fake.Behaviour {
	return fake.Behaviour{Outcome: outcome, Delay: d, FailMessage: "queue vanished"}
}

func silent() fake.Behaviour {
	return fake.Behaviour{Outcome: fake.Silent}
}

func sentValues(w *fake.Worker, option notes.SetOption) []string {
	var values []string
	for _, r := range w.Received() {
		if set, ok := r.Note.(*notes.SetRequest); ok && set.Option == option {
			values = append(values, set.Value)
		}
	}
	return values
}

func TestCoordinator_WarmUpThenRun(t *testing.T) {
	logs := map[notes.LogLocation]map[string][]byte{
		notes.LogLastSuccessful: {"test.properties": []byte("rate=100\n")},
	}
	senderBehaviour := succeedAfter(10 * time.Millisecond)
	senderBehaviour.Logs = logs
	receiverBehaviour := silent()
	receiverBehaviour.Logs = logs
	inspectorBehaviour := silent()
	inspectorBehaviour.Logs = logs

	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
		sender1:    senderBehaviour,
		receiver1:  receiverBehaviour,
		inspector1: inspectorBehaviour,
	}, withReports(t))

	result, err := s.coordinator.Run(maestrocontext.Background(), testProfile("30s", 100))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	require.Len(t, result.Phases, 2)
	assert.Equal(t, profile.WarmUpPhase, result.Phases[0].Phase)
	assert.Equal(t, StateSuccess, result.Phases[0].State)
	assert.Equal(t, int32(1), result.Phases[0].TestNumber)
	assert.Equal(t, profile.RunPhase, result.Phases[1].Phase)
	assert.Equal(t, int32(2), result.Phases[1].TestNumber)
	assert.Equal(t, StateIdle, s.coordinator.State())

	sender := s.fleet.Find(sender1.Key())
	assert.Equal(t, []string{"30", "100"}, sentValues(sender, notes.SetRate))
	assert.Equal(t, []string{"3s", "30s"}, sentValues(sender, notes.SetDurationType))
	assert.Equal(t, []string{"2", "2"}, sentValues(sender, notes.SetParallelCount))
	broker, _ := sender.Setting(notes.SetBroker)
	assert.Equal(t, "amqp://sut:5672/test.performance.queue", broker)
	assert.Empty(t, sentValues(s.fleet.Find(inspector1.Key()), notes.SetRate))

	assert.Equal(t, 2, s.fleet.Count(notes.CmdStartSender))
	assert.Equal(t, 2, s.fleet.Find(sender1.Key()).Count(notes.CmdStartTest))
	assert.Equal(t, 2, s.fleet.Count(notes.CmdStartInspector))

	for _, dir := range []string{"1", "2"} {
		for _, peer := range []notes.PeerInfo{sender1, receiver1, inspector1} {
			_, err := os.Stat(filepath.Join(s.dir, dir, peer.Role.String(), peer.Host, "test.properties"))
			assert.NoError(t, err, "logs of %s for test %s", peer, dir)
		}
	}
}

func TestCoordinator_AggregationIsOrderIndependent(t *testing.T) {
	tests := map[string]struct {
		first   fake.Behaviour
		second  fake.Behaviour
		want    State
		failure domain.PeerStatus
		message string
	}{
		"both succeed, first sender faster": {
			first:  succeedAfter(5 * time.Millisecond),
			second: succeedAfter(60 * time.Millisecond),
			want:   StateSuccess,
		},
		"both succeed, second sender faster": {
			first:  succeedAfter(60 * time.Millisecond),
			second: succeedAfter(5 * time.Millisecond),
			want:   StateSuccess,
		},
		"success before failure": {
			first:   succeedAfter(5 * time.Millisecond),
			second:  failAfter(60 * time.Millisecond),
			want:    StateFailed,
			failure: domain.Failed,
			message: "latency above the limit",
		},
		"failure before success": {
			first:   failAfter(5 * time.Millisecond),
			second:  succeedAfter(60 * time.Millisecond),
			want:    StateFailed,
			failure: domain.Failed,
			message: "latency above the limit",
		},
		"crash before success": {
			first:   crashAfter(5 * time.Millisecond),
			second:  succeedAfter(60 * time.Millisecond),
			want:    StateFailed,
			failure: domain.Disconnected,
			message: "connection lost",
		},
		"success before crash": {
			first:   succeedAfter(5 * time.Millisecond),
			second:  crashAfter(60 * time.Millisecond),
			want:    StateFailed,
			failure: domain.Disconnected,
			message: "connection lost",
		},
		"internal error while collecting": {
			first:   succeedAfter(60 * time.Millisecond),
			second:  replyAfter(fake.InternalError, 5*time.Millisecond),
			want:    StateFailed,
			failure: domain.Errored,
			message: "queue vanished",
		},
		"protocol error while collecting": {
			first:   replyAfter(fake.ProtocolError, 5*time.Millisecond),
			second:  succeedAfter(60 * time.Millisecond),
			want:    StateFailed,
			failure: domain.Errored,
			message: "protocol error",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
				sender1:   tc.first,
				sender2:   tc.second,
				receiver1: silent(),
			})
			p := testProfile("30s", 100)
			p.WarmUp.Disabled = true

			result, err := s.coordinator.Run(maestrocontext.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.State)
			last, ok := result.Last()
			require.True(t, ok)
			if tc.want == StateFailed {
				require.Len(t, last.Failures(), 1)
				assert.Equal(t, tc.failure, last.Failures()[0].Status)
				assert.Equal(t, tc.message, last.Failures()[0].Message)
			} else {
				assert.Empty(t, last.Failures())
				assert.Equal(t, 2, last.Outcomes.CountSucceeded(isSender))
			}
		})
	}
}

func TestCoordinator_TimeoutStopsEveryPeerOnce(t *testing.T) {
	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
		sender1:    silent(),
		receiver1:  silent(),
		inspector1: silent(),
	}, withReports(t))
	p := testProfile("1s", 100)
	p.WarmUp.Disabled = true

	result, err := s.coordinator.Run(maestrocontext.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, result.State)

	stops := map[notes.PeerInfo]notes.Command{
		sender1:    notes.CmdStopSender,
		receiver1:  notes.CmdStopReceiver,
		inspector1: notes.CmdStopInspector,
	}
	for peer, stop := range stops {
		w := s.fleet.Find(peer.Key())
		assert.Eventually(t, func() bool { return w.Count(stop) == 1 }, time.Second, 10*time.Millisecond, "stop of %s", peer)
	}
	time.Sleep(50 * time.Millisecond)
	for peer, stop := range stops {
		assert.Equal(t, 1, s.fleet.Find(peer.Key()).Count(stop), "stops of %s", peer)
	}
	assert.Zero(t, s.fleet.Count(notes.CmdLog))
}

func TestCoordinator_WarmUpFailureShortCircuits(t *testing.T) {
	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
		sender1:   failAfter(10 * time.Millisecond),
		receiver1: silent(),
	}, withReports(t))

	result, err := s.coordinator.Run(maestrocontext.Background(), testProfile("30s", 100))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	require.Len(t, result.Phases, 1)
	assert.Equal(t, profile.WarmUpPhase, result.Phases[0].Phase)
	assert.Equal(t, 1, s.fleet.Count(notes.CmdStartSender))

	assert.Eventually(t, func() bool { return s.fleet.Count(notes.CmdLog) == 2 }, time.Second, 10*time.Millisecond)
	for _, w := range s.fleet.Workers {
		for _, r := range w.Received() {
			if req, ok := r.Note.(*notes.LogRequest); ok {
				assert.Equal(t, notes.LogLastFailed, req.Location)
			}
		}
	}
}

func TestCoordinator_RejectedSettingsFailThePhase(t *testing.T) {
	rejecting := succeedAfter(10 * time.Millisecond)
	rejecting.SetError = "unsupported rate"
	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
		sender1:   rejecting,
		receiver1: silent(),
	})
	p := testProfile("30s", 100)
	p.WarmUp.Disabled = true

	result, err := s.coordinator.Run(maestrocontext.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, result.State)
	last, _ := result.Last()
	assert.Contains(t, last.Message, "unsupported rate")
	assert.Zero(t, s.fleet.Count(notes.CmdStartSender))
}

func TestCoordinator_SkipsPeersWithoutService(t *testing.T) {
	exporter := notes.PeerInfo{Role: notes.RoleExporter, Name: "exporter", Host: "h5"}
	reportsServer := notes.PeerInfo{Role: notes.RoleReportsServer, Name: "reports", Host: "h6"}
	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
		sender1:       succeedAfter(10 * time.Millisecond),
		receiver1:     silent(),
		exporter:      silent(),
		reportsServer: silent(),
	})
	p := testProfile("30s", 100)
	p.WarmUp.Disabled = true

	result, err := s.coordinator.Run(maestrocontext.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, 1, s.fleet.Count(notes.CmdStartSender))
	assert.Equal(t, 1, s.fleet.Count(notes.CmdStartReceiver))
	for _, peer := range []notes.PeerInfo{exporter, reportsServer} {
		for _, r := range s.fleet.Find(peer.Key()).Received() {
			assert.Equal(t, topics.AllDaemons, r.Topic, "%s was addressed directly with %s", peer, r.Note.NoteHeader().Command)
		}
	}
}

func TestCoordinator_RejectsConcurrentRuns(t *testing.T) {
	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{
		sender1:   silent(),
		receiver1: silent(),
	})
	p := testProfile("30s", 100)
	p.WarmUp.Disabled = true

	ctx, cancel := maestrocontext.WithCancel(maestrocontext.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.coordinator.Run(ctx, p)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.coordinator.State() == StateCollecting }, time.Second, 5*time.Millisecond)

	_, err := s.coordinator.Run(maestrocontext.Background(), p)
	assert.Equal(t, maestroerrors.KindAlreadyRunning, maestroerrors.KindFromError(err))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	assert.Equal(t, StateIdle, s.coordinator.State())
	assert.Eventually(t, func() bool { return s.fleet.Count(notes.CmdStopSender) == 1 }, time.Second, 10*time.Millisecond)
}

func TestCoordinator_PollsStatistics(t *testing.T) {
	config := testConfig()
	config.StatsInterval = 10 * time.Millisecond
	s := setup(t, config, map[notes.PeerInfo]fake.Behaviour{
		sender1:   succeedAfter(100 * time.Millisecond),
		receiver1: silent(),
	})
	p := testProfile("30s", 100)
	p.WarmUp.Disabled = true

	result, err := s.coordinator.Run(maestrocontext.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Greater(t, s.fleet.Find(sender1.Key()).Count(notes.CmdStats), 1)
	assert.Empty(t, s.maestro.Collector().CollectMatching(collector.ByCommand(notes.CmdStats)))
}

func TestCoordinator_DrainsReceivers(t *testing.T) {
	config := testConfig()
	config.DrainTimeout = 100 * time.Millisecond
	s := setup(t, config, map[notes.PeerInfo]fake.Behaviour{
		sender1:   succeedAfter(10 * time.Millisecond),
		receiver1: silent(),
	})
	p := testProfile("30s", 100)
	p.WarmUp.Disabled = true

	result, err := s.coordinator.Run(maestrocontext.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, 1, s.fleet.Find(receiver1.Key()).Count(notes.CmdDrain))
	assert.Zero(t, s.fleet.Find(sender1.Key()).Count(notes.CmdDrain))
}

func TestCoordinator_NoPeers(t *testing.T) {
	s := setup(t, testConfig(), map[notes.PeerInfo]fake.Behaviour{inspector1: silent()})
	p := testProfile("30s", 100)

	result, err := s.coordinator.Run(maestrocontext.Background(), p)
	assert.Equal(t, maestroerrors.KindNotFound, maestroerrors.KindFromError(err))
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateIdle, s.coordinator.State())
}
