// Package fake provides simulated maestro workers. They speak the full protocol over any transport but only pretend
// to exchange test traffic, which makes them useful for tests and for dry runs of a test profile.
package fake

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maestro-performance/maestro-go/internal/common/util"
	"github.com/maestro-performance/maestro-go/internal/exchange/transport"
	"github.com/maestro-performance/maestro-go/pkg/notes"
	"github.com/maestro-performance/maestro-go/pkg/topics"
)

type Outcome int

const (
	// Silent workers never report an outcome.
	Silent Outcome = iota
	Succeed
	Fail
	// InternalError and ProtocolError answer with an error response instead of a notification.
	InternalError
	ProtocolError
	// Crash drops the broker connection without disconnecting, so the broker announces the worker's will.
	Crash
)

// Behaviour tells a worker how to react.
type Behaviour struct {
	// Outcome is reported once Delay has passed after the worker's service was started.
	Outcome Outcome
	Delay   time.Duration
	// FailMessage is sent with a failed outcome or an internal error.
	FailMessage string
	// SetError makes the worker answer Set requests with an internal error.
	SetError string
	// RoleAssignError makes the worker refuse role assignments with an internal error.
	RoleAssignError string
	// Logs maps a log location to the files a worker transfers when asked for them.
	Logs           map[notes.LogLocation]map[string][]byte
	LogChunkSize   int
	DataServerPort int
	// Clock stamps ping and stats responses. Defaults to the system clock.
	Clock util.Clock
	// Reconnect is how often a lost broker connection is checked and restored. Zero leaves a dropped worker
	// disconnected, like a crashed process.
	Reconnect time.Duration
}

// DefaultBehaviour reports success after a short delay for senders and stays silent otherwise.
func DefaultBehaviour(role notes.Role) Behaviour {
	b := Behaviour{Delay: 10 * time.Millisecond, DataServerPort: 8000, Reconnect: time.Second}
	if role == notes.RoleSender {
		b.Outcome = Succeed
	}
	return b
}

// Received is a request seen by a worker, with the topic it arrived on.
type Received struct {
	Topic string
	Note  notes.Note
}

type Worker struct {
	behaviour Behaviour
	clock     util.Clock
	id        string

	mu       sync.Mutex
	info     notes.PeerInfo
	peer     *transport.Peer
	received []Received
	settings map[notes.SetOption]string
	test     notes.Test
	pending  *time.Timer
	stop     func()
}

func NewWorker(info notes.PeerInfo, behaviour Behaviour) *Worker {
	var clock util.Clock = util.SystemClock{}
	if behaviour.Clock != nil {
		clock = behaviour.Clock
	}
	return &Worker{
		behaviour: behaviour,
		clock:     clock,
		id:        util.NewULID(),
		info:      info,
		settings:  map[notes.SetOption]string{},
	}
}

func (w *Worker) Info() notes.PeerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}

func (w *Worker) origin() notes.Origin {
	return notes.Origin{ID: w.id, Peer: w.Info()}
}

// Connect attaches the worker to the broker at brokerURL. An abnormal disconnect of the worker is announced
// through its will.
func (w *Worker) Connect(ctx context.Context, brokerURL string, opts ...transport.Option) error {
	will, err := notes.Encode(notes.NewAbnormalDisconnectNotification(w.origin(), "connection lost"))
	if err != nil {
		return err
	}
	opts = append(append([]transport.Option{}, opts...),
		transport.WithClientID(util.NewClientID(w.info.Role.String())),
		transport.WithWill(transport.Will{Topic: topics.Notifications, Payload: will}))
	t, err := transport.New(brokerURL, opts...)
	if err != nil {
		return err
	}
	peer := transport.NewPeer(t, w)
	if err := peer.Connect(ctx); err != nil {
		return err
	}
	if err := peer.Subscribe(topics.Subscriptions(w.Info())...); err != nil {
		peer.Disconnect()
		return err
	}
	w.mu.Lock()
	w.peer = peer
	if w.behaviour.Reconnect > 0 {
		w.stop = peer.StartSupervising(w.behaviour.Reconnect)
	}
	w.mu.Unlock()
	return nil
}

func (w *Worker) Disconnect() {
	w.mu.Lock()
	peer, stop := w.peer, w.stop
	w.stop = nil
	w.cancelPending()
	w.mu.Unlock()
	if stop != nil {
		stop()
	}
	if peer != nil {
		peer.Disconnect()
	}
}

// Transport exposes the worker's broker connection, e.g. to simulate a crash with MemoryTransport.Drop.
func (w *Worker) Transport() transport.Transport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peer.Transport()
}

// Received returns the requests seen so far, in arrival order.
func (w *Worker) Received() []Received {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Received(nil), w.received...)
}

// Count returns how many requests with command the worker has seen.
func (w *Worker) Count(command notes.Command) int {
	count := 0
	for _, r := range w.Received() {
		if r.Note.NoteHeader().Command == command {
			count++
		}
	}
	return count
}

// Setting returns the last value set for option.
func (w *Worker) Setting(option notes.SetOption) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.settings[option]
	return v, ok
}

func (w *Worker) Test() notes.Test {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.test
}

func (w *Worker) NoteArrived(topic string, note notes.Note) {
	if note.NoteHeader().Type != notes.RequestType {
		return
	}
	w.mu.Lock()
	w.received = append(w.received, Received{Topic: topic, Note: note})
	w.mu.Unlock()

	switch req := note.(type) {
	case *notes.PingRequest:
		w.publish(notes.NewPingResponse(w.origin(), req, w.clock.Now()))
	case *notes.SetRequest:
		w.handleSet(req)
	case *notes.GetRequest:
		resp := notes.NewGetResponse(w.origin(), req.Option, fmt.Sprintf("http://%s:%d/", w.Info().Host, w.behaviour.DataServerPort))
		w.reply(resp, req)
	case *notes.StartTestRequest:
		w.mu.Lock()
		w.test = req.Info.Test
		w.mu.Unlock()
		w.ok(req)
	case *notes.StartSenderRequest, *notes.StartReceiverRequest, *notes.StartInspectorRequest, *notes.StartAgentRequest:
		w.ok(req)
		w.scheduleOutcome()
	case *notes.StopSenderRequest, *notes.StopReceiverRequest, *notes.StopInspectorRequest, *notes.StopAgentRequest,
		*notes.StopWorkerRequest, *notes.StopTestRequest:
		w.mu.Lock()
		w.cancelPending()
		w.mu.Unlock()
		w.ok(req)
	case *notes.StatsRequest:
		w.reply(w.stats(), req)
	case *notes.LogRequest:
		if topics.IsAddressee(w.Info(), req.Target) {
			w.sendLogs(req)
		}
	case *notes.DrainRequest:
		if topics.IsAddressee(w.Info(), req.Target) {
			w.publish(notes.NewDrainCompleteNotification(w.origin(), true, "drained"))
		}
	case *notes.RoleAssignRequest:
		if !topics.IsAddressee(w.Info(), req.Target) {
			break
		}
		if w.behaviour.RoleAssignError != "" {
			w.reply(notes.NewInternalErrorResponse(w.origin(), w.behaviour.RoleAssignError), req)
			break
		}
		w.changeRole(req.Role, req)
	case *notes.RoleUnassignRequest:
		if topics.IsAddressee(w.Info(), req.Target) {
			w.changeRole(notes.RoleOther, req)
		}
	case *notes.HaltRequest:
		go w.Disconnect()
	default:
		w.ok(req)
	}
}

func (w *Worker) handleSet(req *notes.SetRequest) {
	if w.behaviour.SetError != "" {
		w.reply(notes.NewInternalErrorResponse(w.origin(), w.behaviour.SetError), req)
		return
	}
	w.mu.Lock()
	w.settings[req.Option] = req.Value
	w.mu.Unlock()
	w.ok(req)
}

func (w *Worker) stats() *notes.StatsResponse {
	s := notes.NewStatsResponse(w.origin())
	s.ChildCount = 1
	s.Role = w.Info().Role.String()
	s.RoleInfo = fmt.Sprintf("%s/%s", w.Info().Name, w.Info().Host)
	s.StatsType = notes.StatsWorker
	s.Timestamp = w.clock.Now().Format(time.RFC3339)
	if rate, ok := w.Setting(notes.SetRate); ok {
		s.Rate, _ = strconv.ParseFloat(rate, 64)
	}
	return s
}

func (w *Worker) changeRole(role notes.Role, req notes.Note) {
	w.mu.Lock()
	w.info.Role = role
	peer := w.peer
	w.mu.Unlock()
	if err := peer.Subscribe(topics.Subscriptions(w.Info())...); err != nil {
		w.reply(notes.NewInternalErrorResponse(w.origin(), err.Error()), req)
		return
	}
	w.ok(req)
}

func (w *Worker) sendLogs(req *notes.LogRequest) {
	for name, content := range w.behaviour.Logs[req.Location] {
		w.publish(notes.NewLogResponse(w.origin(), req.Location, name, content, w.behaviour.LogChunkSize))
	}
}

// scheduleOutcome must not be called with w.mu held.
func (w *Worker) scheduleOutcome() {
	var outcome notes.Note
	switch w.behaviour.Outcome {
	case Succeed:
		outcome = notes.NewTestSuccessfulNotification(w.origin(), w.Test(), "test completed")
	case Fail:
		outcome = notes.NewTestFailedNotification(w.origin(), w.Test(), w.behaviour.FailMessage)
	case InternalError:
		outcome = notes.NewInternalErrorResponse(w.origin(), w.behaviour.FailMessage)
	case ProtocolError:
		outcome = notes.NewProtocolErrorResponse(w.origin())
	case Crash:
	default:
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelPending()
	w.pending = time.AfterFunc(w.behaviour.Delay, func() {
		if outcome == nil {
			w.crash()
			return
		}
		w.publish(outcome)
	})
}

// crash closes the connection as a network failure would, if the transport can simulate one.
func (w *Worker) crash() {
	w.mu.Lock()
	peer := w.peer
	w.mu.Unlock()
	if peer == nil {
		return
	}
	if t, ok := peer.Transport().(interface{ Drop() }); ok {
		t.Drop()
	}
}

func (w *Worker) cancelPending() {
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

func (w *Worker) ok(req notes.Note) {
	w.reply(notes.NewOkResponse(w.origin()), req)
}

func (w *Worker) reply(resp notes.Note, req notes.Note) {
	notes.Correlate(resp, req)
	w.publish(resp)
}

func (w *Worker) publish(n notes.Note) {
	w.mu.Lock()
	peer := w.peer
	w.mu.Unlock()
	if peer == nil {
		return
	}
	if err := peer.Publish(topics.ReplyTopic(n), n); err != nil {
		log.WithError(err).Warnf("Worker %s failed to publish %s", w.Info().Key(), n.NoteHeader())
	}
}
