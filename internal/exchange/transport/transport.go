// Package transport connects maestro peers to a pub/sub broker.
//
// A Transport moves opaque payloads between topics; a Peer layers the note codec on top of one and hands
// decoded notes to a NoteHandler.
package transport

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/maestro-performance/maestro-go/internal/common/maestroerrors"
	"github.com/maestro-performance/maestro-go/internal/common/util"
)

// MessageHandler receives the payloads published on subscribed topics. It is called from the transport's
// receive goroutine, one message at a time.
type MessageHandler func(topic string, payload []byte)

// Transport is the minimal set of broker primitives maestro relies on. Connections use clean sessions and
// at-most-once delivery.
type Transport interface {
	// Connect opens a new session. Subscriptions of a previous session are not restored.
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	// Publish sends payload to topic. Retained payloads are kept by the broker and delivered to late
	// subscribers, where the broker supports it.
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topics []string, handler MessageHandler) error
	URL() string
}

// Will is published by the broker on behalf of a client that disconnects without calling Disconnect.
type Will struct {
	Topic   string
	Payload []byte
}

type options struct {
	clientID       string
	connectTimeout time.Duration
	publishTimeout time.Duration
	will           *Will
	memory         *MemoryBroker
}

type Option func(*options)

// WithClientID overrides the random client identifier.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) { o.publishTimeout = d }
}

func WithWill(will Will) Option {
	return func(o *options) { o.will = &will }
}

// WithMemoryBroker provides the broker used for mem:// URLs.
func WithMemoryBroker(b *MemoryBroker) Option {
	return func(o *options) { o.memory = b }
}

// New returns a disconnected transport for brokerURL, chosen by the URL scheme:
// mqtt, mqtts, tcp, ssl, ws and wss use MQTT, nats uses NATS and mem uses an in-process broker.
func New(brokerURL string, opts ...Option) (Transport, error) {
	o := options{
		clientID:       util.NewClientID("maestro"),
		connectTimeout: 10 * time.Second,
		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "brokerUrl",
			Value:   brokerURL,
			Message: err.Error(),
		})
	}
	switch u.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "tls", "ws", "wss":
		return newMqttTransport(brokerURL, o), nil
	case "nats", "tls+nats":
		return newNatsTransport(brokerURL, o), nil
	case "mem":
		if o.memory == nil {
			return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
				Name:    "brokerUrl",
				Value:   brokerURL,
				Message: "no in-memory broker was provided",
			})
		}
		return o.memory.attach(brokerURL, o), nil
	default:
		return nil, errors.WithStack(&maestroerrors.ErrInvalidArgument{
			Name:    "brokerUrl",
			Value:   brokerURL,
			Message: "unsupported scheme " + u.Scheme,
		})
	}
}

func connectionError(url, op string, err error) error {
	return errors.WithStack(&maestroerrors.ErrConnection{URL: url, Op: op, Err: err})
}
