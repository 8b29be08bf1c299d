// Package client is the coordinator's handle on the maestro peers: it publishes requests to the right topics and
// reads the replies buffered by a collector.
package client

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/internal/common/util"
	"github.com/maestro-performance/maestro-go/internal/exchange/collector"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/pkg/notes"
	"github.com/maestro-performance/maestro-go/pkg/topics"
)

// Maestro sends requests to maestro peers. Every method returns the request it published so that callers can
// wait for correlated replies with AwaitReplies.
type Maestro struct {
	peer      *transport.Peer
	collector *collector.Collector
	clock     util.Clock
}

func New(peer *transport.Peer, c *collector.Collector) *Maestro {
	return &Maestro{peer: peer, collector: c, clock: util.SystemClock{}}
}

// Dial connects to the broker at brokerURL and subscribes to the coordinator topics.
func Dial(ctx context.Context, brokerURL string, opts ...transport.Option) (*Maestro, error) {
	t, err := transport.New(brokerURL, opts...)
	if err != nil {
		return nil, err
	}
	c := collector.New()
	peer := transport.NewPeer(t, c)
	if err := peer.Connect(ctx); err != nil {
		return nil, err
	}
	if err := peer.Subscribe(topics.CoordinatorSubscriptions()...); err != nil {
		peer.Disconnect()
		return nil, err
	}
	return New(peer, c), nil
}

func (m *Maestro) Collector() *collector.Collector {
	return m.collector
}

func (m *Maestro) Peer() *transport.Peer {
	return m.peer
}

func (m *Maestro) Close() {
	m.peer.Disconnect()
}

func (m *Maestro) publish(topic string, note notes.Note) error {
	log.Debugf("Publishing %s to %s", note.NoteHeader(), topic)
	return errors.WithMessagef(m.peer.Publish(topic, note), "publishing %s to %s", note.NoteHeader().Command, topic)
}

// Set changes option on the peers listening on topic.
func (m *Maestro) Set(topic string, option notes.SetOption, value string) (*notes.SetRequest, error) {
	req := notes.NewSetRequest(option, value)
	return req, m.publish(topic, req)
}

func (m *Maestro) SetBroker(topic, value string) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetBroker, value)
}

// SetDuration accepts either a time duration such as "30s" or a message count.
func (m *Maestro) SetDuration(topic, value string) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetDurationType, value)
}

func (m *Maestro) SetParallelCount(topic string, value int) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetParallelCount, strconv.Itoa(value))
}

// SetMessageSize accepts a fixed size or a variable one prefixed with ~.
func (m *Maestro) SetMessageSize(topic, value string) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetMessageSize, value)
}

func (m *Maestro) SetRate(topic string, value int) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetRate, strconv.Itoa(value))
}

// SetFCL sets the fail-condition-latency, in milliseconds.
func (m *Maestro) SetFCL(topic string, value int) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetFCL, strconv.Itoa(value))
}

func (m *Maestro) SetManagementInterface(topic, value string) (*notes.SetRequest, error) {
	return m.Set(topic, notes.SetManagementInterface, value)
}

func (m *Maestro) Get(topic string, option notes.GetOption) (*notes.GetRequest, error) {
	req := notes.NewGetRequest(option)
	return req, m.publish(topic, req)
}

func (m *Maestro) Ping(topic string) (*notes.PingRequest, error) {
	req := notes.NewPingRequest(m.clock.Now())
	return req, m.publish(topic, req)
}

func (m *Maestro) Stats(topic string) (*notes.StatsRequest, error) {
	req := notes.NewStatsRequest()
	return req, m.publish(topic, req)
}

func (m *Maestro) Flush(topic string) (*notes.FlushRequest, error) {
	req := notes.NewFlushRequest()
	return req, m.publish(topic, req)
}

func (m *Maestro) Halt(topic string) (*notes.HaltRequest, error) {
	req := notes.NewHaltRequest()
	return req, m.publish(topic, req)
}

func (m *Maestro) SourceRequest(topic, sourceURL, branch string) (*notes.AgentSourceRequest, error) {
	req := notes.NewAgentSourceRequest(sourceURL, branch)
	return req, m.publish(topic, req)
}

func (m *Maestro) UserCommand(topic, command string) (*notes.UserCommand1Request, error) {
	req := notes.NewUserCommand1Request(command)
	return req, m.publish(topic, req)
}

func (m *Maestro) GroupJoin(topic, groupName, memberName string) (*notes.GroupJoinRequest, error) {
	req := notes.NewGroupJoinRequest(groupName, memberName)
	return req, m.publish(topic, req)
}

func (m *Maestro) GroupLeave(topic string) (*notes.GroupLeaveRequest, error) {
	req := notes.NewGroupLeaveRequest()
	return req, m.publish(topic, req)
}

// StartTest announces a test execution to every peer.
func (m *Maestro) StartTest(info notes.TestExecutionInfo) (*notes.StartTestRequest, error) {
	req := notes.NewStartTestRequest(info)
	return req, m.publish(topics.AllDaemons, req)
}

func (m *Maestro) StopTest(topic string) (*notes.StopTestRequest, error) {
	req := notes.NewStopTestRequest()
	return req, m.publish(topic, req)
}

func (m *Maestro) StartWorker(peer notes.PeerInfo, workerName string) (*notes.StartWorkerRequest, error) {
	req := notes.NewStartWorkerRequest(workerName)
	return req, m.publish(topics.ForPeer(peer), req)
}

func (m *Maestro) StopWorker(peer notes.PeerInfo) (*notes.StopWorkerRequest, error) {
	req := notes.NewStopWorkerRequest()
	return req, m.publish(topics.ForPeer(peer), req)
}

// StartService starts whatever the peer's role runs during a test. inspectorName only matters for inspectors.
func (m *Maestro) StartService(peer notes.PeerInfo, inspectorName string) (notes.Note, error) {
	var req notes.Note
	switch peer.Role {
	case notes.RoleSender:
		req = notes.NewStartSenderRequest()
	case notes.RoleReceiver:
		req = notes.NewStartReceiverRequest()
	case notes.RoleInspector:
		req = notes.NewStartInspectorRequest(inspectorName)
	case notes.RoleAgent:
		req = notes.NewStartAgentRequest()
	default:
		return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "role",
			Value:   peer.Role.String(),
			Message: "peer " + peer.Key() + " has no service to start",
		})
	}
	return req, m.publish(topics.ForPeer(peer), req)
}

// StopService sends the stop request matching the peer's role to its directed topic.
func (m *Maestro) StopService(peer notes.PeerInfo) (notes.Note, error) {
	var req notes.Note
	switch peer.Role {
	case notes.RoleSender:
		req = notes.NewStopSenderRequest()
	case notes.RoleReceiver:
		req = notes.NewStopReceiverRequest()
	case notes.RoleInspector:
		req = notes.NewStopInspectorRequest()
	case notes.RoleAgent:
		req = notes.NewStopAgentRequest()
	default:
		req = notes.NewStopWorkerRequest()
	}
	return req, m.publish(topics.ForPeer(peer), req)
}

// Log asks a single peer to transfer its logs to the logs topic.
func (m *Maestro) Log(peer notes.PeerInfo, location notes.LogLocation, typeName string) (*notes.LogRequest, error) {
	req := notes.NewLogRequest(peer, location, typeName)
	return req, m.publish(topics.ForPeer(peer), req)
}

func (m *Maestro) Drain(peer notes.PeerInfo, duration, url string, parallelCount int, workerName string) (*notes.DrainRequest, error) {
	req := notes.NewDrainRequest(peer, duration, url, strconv.Itoa(parallelCount), workerName)
	return req, m.publish(topics.ForPeer(peer), req)
}

// RoleAssign is sent to the generic worker topic of the peer, since the peer does not have a role yet.
func (m *Maestro) RoleAssign(peer notes.PeerInfo, role notes.Role) (*notes.RoleAssignRequest, error) {
	req := notes.NewRoleAssignRequest(peer, role)
	return req, m.publish(topics.ForPeer(notes.PeerInfo{Role: notes.RoleOther, Name: peer.Name, Host: peer.Host}), req)
}

func (m *Maestro) RoleUnassign(peer notes.PeerInfo) (*notes.RoleUnassignRequest, error) {
	req := notes.NewRoleUnassignRequest(peer)
	return req, m.publish(topics.ForPeer(peer), req)
}

// AwaitReplies waits until expected replies correlated with requests arrived or ctx ends, and returns the
// replies received so far.
func (m *Maestro) AwaitReplies(ctx context.Context, expected int, requests ...notes.Note) ([]notes.Note, error) {
	return m.collector.WaitFor(ctx, collector.CorrelatedWith(requests...), expected)
}

// AwaitRepliesWithTimeout is AwaitReplies bounded by timeout.
func (m *Maestro) AwaitRepliesWithTimeout(ctx context.Context, timeout time.Duration, expected int, requests ...notes.Note) ([]notes.Note, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.AwaitReplies(ctx, expected, requests...)
}

// CheckReplies returns an error listing every peer that answered with an error.
func CheckReplies(replies []notes.Note) error {
	var result *multierror.Error
	for _, r := range replies {
		switch reply := r.(type) {
		case *notes.InternalErrorResponse:
			result = multierror.Append(result, errors.Errorf("%s failed: %s", reply.Peer, reply.Message))
		case *notes.ProtocolErrorResponse:
			result = multierror.Append(result, errors.Errorf("%s did not understand the request", reply.Peer))
		}
	}
	return result.ErrorOrNil()
}
