package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NatsTransport maps maestro topics onto NATS subjects. NATS has neither retained messages nor wills: retained
// publishes are sent as ordinary messages and abnormal disconnects go unannounced.
type NatsTransport struct {
	url  string
	opts options

	mu   sync.RWMutex
	conn *nats.Conn
	subs map[string]*nats.Subscription
}

func newNatsTransport(brokerURL string, o options) *NatsTransport {
	return &NatsTransport{url: brokerURL, opts: o}
}

// Subject converts a topic such as /mpt/sender/host-1.example.com to mpt.sender.host-1_example_com.
func Subject(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	for i, p := range parts {
		parts[i] = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(p)
	}
	return strings.Join(parts, ".")
}

func (t *NatsTransport) URL() string { return t.url }

func (t *NatsTransport) Connect(ctx context.Context) error {
	timeout := t.opts.connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := nats.Connect(brokerAddress(t.url),
		nats.Name(t.opts.clientID),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warnf("Lost connection to %s", t.url)
			}
		}))
	if err != nil {
		return connectionError(t.url, "connect", err)
	}
	log.Infof("Connected to %s as %s", t.url, t.opts.clientID)
	t.mu.Lock()
	t.conn = conn
	t.subs = map[string]*nats.Subscription{}
	t.mu.Unlock()
	return nil
}

func (t *NatsTransport) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
}

func (t *NatsTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil && t.conn.IsConnected()
}

func (t *NatsTransport) current(op string) (*nats.Conn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil || !t.conn.IsConnected() {
		return nil, connectionError(t.url, op, errors.New("not connected"))
	}
	return t.conn, nil
}

func (t *NatsTransport) Publish(topic string, payload []byte, _ bool) error {
	conn, err := t.current("publish")
	if err != nil {
		return err
	}
	if err := conn.Publish(Subject(topic), payload); err != nil {
		return connectionError(t.url, "publish", err)
	}
	return nil
}

func (t *NatsTransport) Subscribe(topics []string, handler MessageHandler) error {
	conn, err := t.current("subscribe")
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, topic := range topics {
		topic := topic
		// Subscribing to a topic again replaces the previous subscription, as MQTT brokers do.
		if old, ok := t.subs[topic]; ok {
			_ = old.Unsubscribe()
		}
		sub, err := conn.Subscribe(Subject(topic), func(msg *nats.Msg) {
			handler(topic, msg.Data)
		})
		if err != nil {
			return connectionError(t.url, "subscribe", err)
		}
		t.subs[topic] = sub
	}
	if err := conn.Flush(); err != nil {
		return connectionError(t.url, "subscribe", err)
	}
	return nil
}
