package transport

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/maestro-performance/maestro-go/internal/common/healthmonitor"
	"github.com/maestro-performance/maestro-go/internal/common/logging"
	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/internal/common/metrics"
	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// NoteHandler is told about every note that arrives on a subscribed topic.
type NoteHandler interface {
	NoteArrived(topic string, note notes.Note)
}

type NoteHandlerFunc func(topic string, note notes.Note)

func (f NoteHandlerFunc) NoteArrived(topic string, note notes.Note) {
	f(topic, note)
}

// RetryPolicy controls how often Connect tries before giving up.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Delay: time.Second}

// Peer exchanges notes over a Transport. Payloads that cannot be decoded are logged and dropped.
type Peer struct {
	transport Transport
	handler   NoteHandler
	retry     RetryPolicy
	health    *healthmonitor.ConnectionHealthMonitor

	mu     sync.Mutex
	topics []string
}

func NewPeer(t Transport, handler NoteHandler) *Peer {
	p := &Peer{
		transport: t,
		handler:   handler,
		retry:     DefaultRetryPolicy,
	}
	p.health = healthmonitor.NewConnectionHealthMonitor(t.URL(), time.Second, t.IsConnected)
	return p
}

func (p *Peer) SetRetryPolicy(policy RetryPolicy) {
	p.retry = policy
}

// Health reports the state of the broker connection as seen by Supervise.
func (p *Peer) Health() *healthmonitor.ConnectionHealthMonitor {
	return p.health
}

func (p *Peer) Transport() Transport {
	return p.transport
}

func (p *Peer) IsConnected() bool {
	return p.transport.IsConnected()
}

// Connect connects the transport, retrying according to the peer's RetryPolicy.
func (p *Peer) Connect(ctx context.Context) error {
	attempts := p.retry.Attempts
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return p.transport.Connect(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.retry.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Attempt %d to connect to %s failed", n+1, p.transport.URL())
		}),
	)
	if err != nil {
		var connErr *maestroerrors.ErrConnection
		if errors.As(err, &connErr) {
			return err
		}
		return connectionError(p.transport.URL(), "connect", err)
	}
	p.health.Check(log.NewEntry(log.StandardLogger()))
	return nil
}

func (p *Peer) Disconnect() {
	p.transport.Disconnect()
}

// Subscribe listens on topics. The topics are remembered and subscribed again after a reconnect.
func (p *Peer) Subscribe(topics ...string) error {
	p.mu.Lock()
	for _, topic := range topics {
		if !slices.Contains(p.topics, topic) {
			p.topics = append(p.topics, topic)
		}
	}
	p.mu.Unlock()
	return p.transport.Subscribe(topics, p.onMessage)
}

func (p *Peer) resubscribe() error {
	p.mu.Lock()
	topics := append([]string(nil), p.topics...)
	p.mu.Unlock()
	if len(topics) == 0 {
		return nil
	}
	return p.transport.Subscribe(topics, p.onMessage)
}

// Publish encodes note and publishes it to topic. Notes spanning several messages, such as large log files, are
// published one part at a time. Test outcome notifications are retained.
func (p *Peer) Publish(topic string, note notes.Note) error {
	retained := notes.IsOutcome(note)
	for {
		payload, err := notes.Encode(note)
		if err != nil {
			return err
		}
		if err := p.transport.Publish(topic, payload, retained); err != nil {
			return err
		}
		metrics.RecordPublished(note)
		if !note.HasNext() {
			return nil
		}
		note.Next()
	}
}

func (p *Peer) onMessage(topic string, payload []byte) {
	note, err := notes.Decode(payload)
	if err != nil {
		logging.WithStacktrace(log.WithField("topic", topic), err).Warn("Dropping note that could not be decoded")
		metrics.RecordMalformed()
		return
	}
	metrics.RecordReceived(note)
	p.handler.NoteArrived(topic, note)
}

// Supervise checks the connection every interval and reconnects, restoring subscriptions, when it is lost.
// It returns when ctx is cancelled.
func (p *Peer) Supervise(ctx context.Context, interval time.Duration) error {
	logger := log.WithField("broker", p.transport.URL())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if p.health.Check(logger) {
			continue
		}
		if err := p.Connect(ctx); err != nil {
			logging.WithStacktrace(logger, err).Error("Failed to reconnect")
			continue
		}
		if err := p.resubscribe(); err != nil {
			logging.WithStacktrace(logger, err).Error("Failed to restore subscriptions")
			continue
		}
		logger.Info("Reconnected")
	}
}

// StartSupervising runs Supervise in the background. The returned function stops it and waits for it to return.
func (p *Peer) StartSupervising(interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Supervise(ctx, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}
