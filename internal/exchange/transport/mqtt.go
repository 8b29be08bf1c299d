package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MqttTransport talks to an MQTT 3.1.1 broker. Sessions are clean, QoS is 0 and the client never reconnects on
// its own: a Peer decides when to reconnect and resubscribes afterwards.
type MqttTransport struct {
	url       string
	opts      options
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.RWMutex
	client mqtt.Client
}

func newMqttTransport(brokerURL string, o options) *MqttTransport {
	return &MqttTransport{url: brokerURL, opts: o, newClient: mqtt.NewClient}
}

// brokerAddress drops the query string, which maestro URLs use for worker settings the broker does not understand.
func brokerAddress(brokerURL string) string {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return brokerURL
	}
	u.RawQuery = ""
	return u.String()
}

func (t *MqttTransport) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerAddress(t.url))
	opts.SetClientID(t.opts.clientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(t.opts.connectTimeout)
	opts.SetOrderMatters(true)
	if t.opts.will != nil {
		opts.SetBinaryWill(t.opts.will.Topic, t.opts.will.Payload, 0, false)
	}
	opts.OnConnect = func(mqtt.Client) {
		log.Infof("Connected to %s as %s", t.url, t.opts.clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithError(err).Warnf("Lost connection to %s", t.url)
	}
	return opts
}

func (t *MqttTransport) URL() string { return t.url }

// Connect does nothing while the connection is open. Otherwise the client whose connection was lost is shut down
// before a new one connects.
func (t *MqttTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	previous := t.client
	if previous != nil && previous.IsConnectionOpen() {
		t.mu.Unlock()
		return nil
	}
	t.client = nil
	t.mu.Unlock()
	if previous != nil {
		previous.Disconnect(0)
	}

	client := t.newClient(t.clientOptions())
	if err := waitToken(ctx, client.Connect(), t.opts.connectTimeout); err != nil {
		return connectionError(t.url, "connect", err)
	}
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

func (t *MqttTransport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

func (t *MqttTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client != nil && t.client.IsConnectionOpen()
}

func (t *MqttTransport) current(op string) (mqtt.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.client == nil || !t.client.IsConnectionOpen() {
		return nil, connectionError(t.url, op, errors.New("not connected"))
	}
	return t.client, nil
}

func (t *MqttTransport) Publish(topic string, payload []byte, retained bool) error {
	client, err := t.current("publish")
	if err != nil {
		return err
	}
	if err := waitToken(context.Background(), client.Publish(topic, 0, retained, payload), t.opts.publishTimeout); err != nil {
		return connectionError(t.url, "publish", err)
	}
	return nil
}

func (t *MqttTransport) Subscribe(topics []string, handler MessageHandler) error {
	client, err := t.current("subscribe")
	if err != nil {
		return err
	}
	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		filters[topic] = 0
	}
	token := client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if err := waitToken(context.Background(), token, t.opts.connectTimeout); err != nil {
		return connectionError(t.url, "subscribe", err)
	}
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
