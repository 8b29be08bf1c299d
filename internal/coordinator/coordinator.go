// Package coordinator drives the peers of a test through a warm-up and a measured phase: it configures them,
// starts their services, waits for the senders to report completion and retrieves their logs.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/maestro-performance/maestro-go/internal/client"
	"github.com/maestro-performance/maestro-go/internal/client/domain"
	"github.com/maestro-performance/maestro-go/internal/common/logging"
	"github.com/maestro-performance/maestro-go/internal/common/maestrocontext"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/internal/common/metrics"
	"github.com/maestro-performance/maestro-go/internal/common/task"
	"github.com/maestro-performance/maestro-go/internal/coordinator/configuration"
	"github.com/maestro-performance/maestro-go/internal/coordinator/distribution"
	"github.com/maestro-performance/maestro-go/internal/coordinator/profile"
	"github.com/maestro-performance/maestro-go/internal/exchange/collector"
	"github.com/maestro-performance/maestro-go/internal/reports"
	"github.com/maestro-performance/maestro-go/pkg/notes"
	"github.com/maestro-performance/maestro-go/pkg/topics"
)

const taskStopTimeout = 5 * time.Second

// Services are started in this order, so that whatever observes or consumes the load is up before it begins.
var startOrder = []notes.Role{notes.RoleInspector, notes.RoleReceiver, notes.RoleSender, notes.RoleAgent}

// Coordinator runs one test at a time.
type Coordinator struct {
	maestro    *client.Maestro
	strategy   distribution.Strategy
	downloader reports.Downloader
	organizer  *reports.Organizer
	config     configuration.CoordinatorConfiguration

	mu        sync.Mutex
	state     State
	running   bool
	iteration int32
	lastTest  int32
}

// New creates a coordinator. downloader and organizer may be nil, in which case no logs are retrieved and test
// numbers start from one.
func New(
	m *client.Maestro,
	strategy distribution.Strategy,
	downloader reports.Downloader,
	organizer *reports.Organizer,
	config configuration.CoordinatorConfiguration,
) *Coordinator {
	return &Coordinator{
		maestro:    m,
		strategy:   strategy,
		downloader: downloader,
		organizer:  organizer,
		config:     config,
		state:      StateIdle,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(ctx *maestrocontext.Context, state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	metrics.RecordState(string(state), allStates)
	ctx.Log.Debugf("Coordinator is now %s", state)
}

func (c *Coordinator) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.WithStack(&maestroerrors.ErrAlreadyRunning{State: string(c.state)})
	}
	c.running = true
	c.iteration++
	return nil
}

func (c *Coordinator) release(ctx *maestrocontext.Context) {
	c.setState(ctx, StateIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

// Run executes the warm-up, unless the profile disables it, then the measured phase. A warm-up that does not
// succeed fails the run without starting the measured phase. Errors are only returned when the test could not
// be carried out, e.g. because the broker is unreachable; peers failing the test are reported through the
// result.
func (c *Coordinator) Run(ctx *maestrocontext.Context, p *profile.Profile) (*Result, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release(ctx)

	if err := p.Validate(); err != nil {
		return nil, err
	}

	result := &Result{State: StateFailed}
	if !p.WarmUp.Disabled {
		phase, err := c.runPhase(ctx, p, profile.WarmUpPhase)
		result.Phases = append(result.Phases, phase)
		if err != nil {
			return result, err
		}
		if phase.State != StateSuccess {
			ctx.Log.Warnf("Warm-up ended %s, skipping the measured run", phase.State)
			return result, nil
		}
		ctx.Log.Infof("Warm-up succeeded, cooling down for %s", c.config.CoolDown)
		if err := maestrocontext.Sleep(ctx, c.config.CoolDown); err != nil {
			return result, errors.WithStack(err)
		}
	}

	phase, err := c.runPhase(ctx, p, profile.RunPhase)
	result.Phases = append(result.Phases, phase)
	if err != nil {
		return result, err
	}
	result.State = phase.State
	return result, nil
}

// phaseState tracks what has to be undone at the end of a phase.
type phaseState struct {
	peers       *distribution.PeerSet
	started     []notes.PeerInfo
	stopOnce    sync.Once
	tasks       *task.BackgroundTaskManager
	removeStats func()
}

func (c *Coordinator) runPhase(parent *maestrocontext.Context, p *profile.Profile, phase profile.Phase) (PhaseResult, error) {
	result := PhaseResult{Phase: phase, State: StateFailed}
	ctx := maestrocontext.WithLogField(parent, "phase", phase.String())
	if phase == profile.WarmUpPhase {
		c.setState(ctx, StateWarmUp)
	} else {
		c.setState(ctx, StateRunning)
	}

	c.maestro.Collector().Clear()
	peers, err := c.strategy.PeerSet(ctx)
	if err != nil {
		c.finish(ctx, &result)
		return result, errors.WithMessagef(err, "selecting the peers for the %s", phase)
	}
	result.Peers = peers
	result.TestNumber = c.nextTestNumber()
	ctx = maestrocontext.WithLogField(ctx, "test", result.TestNumber)

	ps := &phaseState{peers: peers}
	defer c.resetBoundary(ctx, ps)

	settings := p.SettingsFor(phase)
	ctx.Log.Infof("Starting the %s with peers %s: rate %d, parallel count %d, duration %s",
		phase, peers, settings.Rate, settings.ParallelCount, settings.Duration)

	if _, err := c.maestro.StartTest(p.ExecutionInfo(result.TestNumber, c.iteration)); err != nil {
		c.finish(ctx, &result)
		return result, err
	}
	rejected, err := c.applySettings(ctx, p, settings, peers)
	if err != nil {
		c.finish(ctx, &result)
		return result, err
	}
	if rejected != nil {
		logging.WithStacktrace(ctx.Log, rejected).Error("Peers rejected the test settings")
		result.Message = rejected.Error()
		c.finish(ctx, &result)
		return result, nil
	}

	c.startStatsPolling(ctx, ps)
	if err := c.startServices(ctx, p, ps); err != nil {
		c.finish(ctx, &result)
		return result, err
	}

	if err := c.collect(ctx, p, phase, ps, &result); err != nil {
		c.finish(ctx, &result)
		return result, err
	}
	c.stopServices(ctx, ps)
	c.drain(ctx, p, peers)
	c.finish(ctx, &result)

	if result.State != StateTimedOut {
		c.download(ctx, result)
	}
	return result, nil
}

func (c *Coordinator) finish(ctx *maestrocontext.Context, result *PhaseResult) {
	c.setState(ctx, result.State)
	metrics.RecordPhaseOutcome(result.Phase.String(), string(result.State))
	if result.State == StateSuccess {
		ctx.Log.Infof("The %s of test %d succeeded", result.Phase, result.TestNumber)
	} else {
		ctx.Log.Warnf("The %s of test %d ended %s", result.Phase, result.TestNumber, result.State)
	}
}

func (c *Coordinator) nextTestNumber() int32 {
	if c.organizer != nil {
		return c.organizer.Next()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTest++
	return c.lastTest
}

type requestBatch struct {
	requests []notes.Note
	err      error
}

func (b *requestBatch) add(req notes.Note, err error) {
	if b.err != nil {
		return
	}
	if err != nil {
		b.err = err
		return
	}
	b.requests = append(b.requests, req)
}

// applySettings sends the settings of the phase to every peer on its directed topic and waits for the
// acknowledgements. rejected lists the peers that refused them; err is set when they could not be sent.
func (c *Coordinator) applySettings(
	ctx *maestrocontext.Context,
	p *profile.Profile,
	s profile.Settings,
	peers *distribution.PeerSet,
) (rejected error, err error) {
	var batch requestBatch
	for _, peer := range peers.Peers() {
		topic := topics.ForPeer(peer)
		switch peer.Role {
		case notes.RoleSender, notes.RoleReceiver:
			batch.add(c.maestro.SetBroker(topic, p.Endpoint(peer.Role)))
			batch.add(c.maestro.SetDuration(topic, s.Duration.String()))
			batch.add(c.maestro.SetRate(topic, s.Rate))
			batch.add(c.maestro.SetParallelCount(topic, s.ParallelCount))
			batch.add(c.maestro.SetMessageSize(topic, p.MessageSize))
			if p.VariableSize {
				batch.add(c.maestro.Set(topic, notes.SetVariableSize, "true"))
			}
			if p.MaximumLatency > 0 {
				batch.add(c.maestro.SetFCL(topic, p.MaximumLatency))
			}
		case notes.RoleInspector:
			batch.add(c.maestro.SetDuration(topic, s.Duration.String()))
			if p.ManagementInterface != "" {
				batch.add(c.maestro.SetManagementInterface(topic, p.ManagementInterface))
			}
		case notes.RoleAgent:
			if p.ExtensionPoint.Source != "" {
				batch.add(c.maestro.SourceRequest(topic, p.ExtensionPoint.Source, p.ExtensionPoint.Branch))
			}
			if p.ExtensionPoint.Command != "" {
				batch.add(c.maestro.UserCommand(topic, p.ExtensionPoint.Command))
			}
		}
	}
	if batch.err != nil {
		return nil, batch.err
	}
	if len(batch.requests) == 0 {
		return nil, nil
	}

	replies, err := c.maestro.AwaitRepliesWithTimeout(ctx, c.config.ReplyTimeout, len(batch.requests), batch.requests...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		ctx.Log.Warnf("Only %d of %d configuration requests were acknowledged", len(replies), len(batch.requests))
	}
	return client.CheckReplies(replies), nil
}

// startServices starts every peer in startOrder. Peers whose role has no service, such as exporters, are
// left alone.
func (c *Coordinator) startServices(ctx *maestrocontext.Context, p *profile.Profile, ps *phaseState) error {
	peers := ps.peers.Peers()
	slices.SortStableFunc(peers, func(a, b notes.PeerInfo) bool {
		return startRank(a.Role) < startRank(b.Role)
	})
	for _, peer := range peers {
		if _, err := c.maestro.StartService(peer, p.InspectorName); err != nil {
			if maestroerrors.KindFromError(err) == maestroerrors.KindInvalidArgument {
				ctx.Log.Infof("Not starting %s: %s", peer, errors.Cause(err))
				continue
			}
			return err
		}
		ctx.Log.Debugf("Started %s", peer)
		ps.started = append(ps.started, peer)
	}
	return nil
}

func startRank(role notes.Role) int {
	if i := slices.Index(startOrder, role); i >= 0 {
		return i
	}
	return len(startOrder)
}

// startStatsPolling exports the statistics the peers report and, if configured, asks them for new ones
// periodically.
func (c *Coordinator) startStatsPolling(ctx *maestrocontext.Context, ps *phaseState) {
	ps.removeStats = c.maestro.Collector().AddCallback(func(n notes.Note) bool {
		if stats, ok := n.(*notes.StatsResponse); ok {
			metrics.RecordStats(stats)
			return false
		}
		return true
	})
	if c.config.StatsInterval <= 0 {
		return
	}
	ps.tasks = task.NewBackgroundTaskManager("maestro_coordinator_")
	ps.tasks.Register(func() {
		if _, err := c.maestro.Stats(topics.AllDaemons); err != nil {
			ctx.Log.WithError(err).Warn("Failed to request statistics")
		}
	}, c.config.StatsInterval, "stats_polling")
}

func isSender(p notes.PeerInfo) bool {
	return p.Role == notes.RoleSender
}

// collect waits until every sender reported success, any peer reported a failure, or the estimated completion
// time plus slack has passed.
func (c *Coordinator) collect(
	ctx *maestrocontext.Context,
	p *profile.Profile,
	phase profile.Phase,
	ps *phaseState,
	result *PhaseResult,
) error {
	c.setState(ctx, StateCollecting)
	expected := ps.peers.Count(notes.RoleSender)
	if expected == 0 {
		result.Message = "no sender is taking part in the test"
		return nil
	}

	timeout := p.EstimatedCompletion(phase) + c.config.Slack
	ctx.Log.Infof("Waiting up to %s for %d senders to complete", timeout, expected)
	watchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcomes, err := client.Watch(watchCtx, c.maestro.Collector(), ps.peers.Peers(),
		func(w *domain.WatchContext, n notes.Note) bool {
			ctx.Log.Infof("%s reported %s (%s)", originOf(n), n.NoteHeader().Command, w.GetCurrentStateSummary())
			return w.HasFailures() || w.CountSucceeded(isSender) >= expected
		})
	result.Outcomes = outcomes

	switch {
	case err == nil && outcomes.HasFailures():
		result.State = StateFailed
		for _, f := range outcomes.Failures() {
			ctx.Log.Errorf("%s %s: %s", f.Peer, f.Status, f.Message)
		}
		result.Message = "peers reported failures"
	case err == nil:
		result.State = StateSuccess
	case ctx.Err() != nil:
		c.stopServices(ctx, ps)
		return errors.WithStack(ctx.Err())
	default:
		result.State = StateTimedOut
		result.Message = "the test did not complete within " + timeout.String()
		ctx.Log.Warnf("Timed out after %s: %s", timeout, outcomes.GetCurrentStateSummary())
	}
	return nil
}

func originOf(n notes.Note) string {
	if o, ok := n.(notes.Originator); ok {
		return o.OriginInfo().Peer.Key()
	}
	return "unknown peer"
}

// stopServices stops the started peers once per phase, senders first. The pause between both gives the
// receivers time to consume the messages in flight.
func (c *Coordinator) stopServices(ctx *maestrocontext.Context, ps *phaseState) {
	ps.stopOnce.Do(func() {
		var senders, others []notes.PeerInfo
		for _, peer := range ps.started {
			if peer.Role == notes.RoleSender {
				senders = append(senders, peer)
			} else {
				others = append(others, peer)
			}
		}

		var result *multierror.Error
		for _, peer := range senders {
			if _, err := c.maestro.StopService(peer); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if len(senders) > 0 && len(others) > 0 {
			_ = maestrocontext.Sleep(ctx, c.config.InflightDelay)
		}
		for _, peer := range others {
			if _, err := c.maestro.StopService(peer); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warn("Failed to stop some peers")
		}
	})
}

// drain asks the receivers to consume what is left on the broker and waits for them to confirm.
func (c *Coordinator) drain(ctx *maestrocontext.Context, p *profile.Profile, peers *distribution.PeerSet) {
	if c.config.DrainTimeout <= 0 {
		return
	}
	receivers := peers.WithRole(notes.RoleReceiver)
	if len(receivers) == 0 {
		return
	}
	keys := make(map[string]struct{}, len(receivers))
	for _, peer := range receivers {
		keys[peer.Key()] = struct{}{}
		if _, err := c.maestro.Drain(peer, c.config.DrainTimeout.String(), p.Endpoint(peer.Role), p.ParallelCount, ""); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warnf("Failed to drain %s", peer)
			delete(keys, peer.Key())
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, c.config.DrainTimeout+c.config.Slack)
	defer cancel()
	pred := collector.And(collector.ByCommand(notes.CmdNotifyDrainComplete), collector.FromPeers(keys))
	drained, err := c.maestro.Collector().WaitFor(drainCtx, pred, len(keys))
	if err != nil {
		ctx.Log.Warnf("Only %d of %d receivers finished draining", len(drained), len(keys))
	}
	for _, n := range drained {
		if d, ok := n.(*notes.DrainCompleteNotification); ok && !d.Successful {
			ctx.Log.Warnf("%s failed to drain: %s", d.Peer, d.Message)
		}
	}
}

// download retrieves the logs matching the outcome of the phase from every peer.
func (c *Coordinator) download(ctx *maestrocontext.Context, result PhaseResult) {
	if c.downloader == nil || result.Peers == nil {
		return
	}
	download := c.downloader.DownloadLastFailed
	if result.State == StateSuccess {
		download = c.downloader.DownloadLastSuccessful
	}
	for _, peer := range result.Peers.Peers() {
		if err := download(peer); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warnf("Failed to request the logs of %s", peer)
		}
	}

	timeout := c.config.Reports.Timeout
	if timeout <= 0 {
		timeout = c.config.ReplyTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.downloader.WaitForComplete(waitCtx); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warn("Not every log was downloaded")
	}
}

// resetBoundary undoes everything a phase started, so that the next phase begins from a clean slate.
func (c *Coordinator) resetBoundary(ctx *maestrocontext.Context, ps *phaseState) {
	c.stopServices(ctx, ps)
	if ps.tasks != nil {
		ps.tasks.StopAll(taskStopTimeout)
	}
	if ps.removeStats != nil {
		ps.removeStats()
	}
	metrics.ResetPeerStats()
	if err := c.strategy.Reset(ctx); err != nil {
		logging.WithStacktrace(ctx.Log, err).Warnf("Failed to reset the %s strategy", c.strategy.Name())
	}
}
