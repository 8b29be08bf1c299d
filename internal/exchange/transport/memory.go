package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryBroker is an in-process broker used for tests and dry runs. It delivers every message to each
// subscribed transport in publish order, on a goroutine owned by the receiving transport, and keeps the last
// retained payload per topic.
type MemoryBroker struct {
	mu       sync.Mutex
	clients  map[*MemoryTransport]struct{}
	retained map[string][]byte
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		clients:  map[*MemoryTransport]struct{}{},
		retained: map[string][]byte{},
	}
}

// attach returns a disconnected transport bound to b.
func (b *MemoryBroker) attach(url string, o options) *MemoryTransport {
	return &MemoryTransport{broker: b, url: url, clientID: o.clientID, will: o.will}
}

// Retained returns the payload retained for topic, if any.
func (b *MemoryBroker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload, ok := b.retained[topic]
	return payload, ok
}

// ClearRetained forgets every retained payload.
func (b *MemoryBroker) ClearRetained() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained = map[string][]byte{}
}

func (b *MemoryBroker) publish(topic string, payload []byte, retained bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = payload
		}
	}
	for c := range b.clients {
		c.deliver(topic, payload)
	}
}

type delivery struct {
	topic   string
	payload []byte
}

type MemoryTransport struct {
	broker   *MemoryBroker
	url      string
	clientID string
	will     *Will

	mu      sync.Mutex
	session *memorySession
}

// memorySession holds the state of one connection; a reconnect starts from an empty session.
type memorySession struct {
	handlers map[string]MessageHandler
	queue    []delivery
	cond     *sync.Cond
	closed   bool
	done     chan struct{}
}

func (t *MemoryTransport) URL() string { return t.url }

func (t *MemoryTransport) ClientID() string { return t.clientID }

func (t *MemoryTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	if t.session != nil {
		t.mu.Unlock()
		return nil
	}
	s := &memorySession{handlers: map[string]MessageHandler{}, done: make(chan struct{})}
	s.cond = sync.NewCond(&t.mu)
	t.session = s
	t.mu.Unlock()

	go t.dispatch(s)

	t.broker.mu.Lock()
	t.broker.clients[t] = struct{}{}
	t.broker.mu.Unlock()
	return nil
}

// dispatch delivers queued messages of session s until it is closed.
func (t *MemoryTransport) dispatch(s *memorySession) {
	defer close(s.done)
	for {
		t.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			t.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		handler := s.handlers[d.topic]
		t.mu.Unlock()

		if handler != nil {
			handler(d.topic, d.payload)
		}
	}
}

// deliver is called with the broker lock held.
func (t *MemoryTransport) deliver(topic string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session
	if s == nil || s.closed || s.handlers[topic] == nil {
		return
	}
	s.queue = append(s.queue, delivery{topic: topic, payload: payload})
	s.cond.Signal()
}

func (t *MemoryTransport) Disconnect() {
	t.close(false)
}

// Drop closes the connection as if the network had failed, so the broker publishes the will, if any.
func (t *MemoryTransport) Drop() {
	t.close(true)
}

func (t *MemoryTransport) close(abnormal bool) {
	t.broker.mu.Lock()
	delete(t.broker.clients, t)
	t.broker.mu.Unlock()

	t.mu.Lock()
	s := t.session
	t.session = nil
	if s != nil {
		s.closed = true
		s.cond.Broadcast()
	}
	t.mu.Unlock()

	if s != nil && abnormal && t.will != nil {
		t.broker.publish(t.will.Topic, t.will.Payload, false)
	}
}

func (t *MemoryTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil
}

func (t *MemoryTransport) Publish(topic string, payload []byte, retained bool) error {
	if !t.IsConnected() {
		return connectionError(t.url, "publish", errors.New("not connected"))
	}
	t.broker.publish(topic, payload, retained)
	return nil
}

func (t *MemoryTransport) Subscribe(topics []string, handler MessageHandler) error {
	t.mu.Lock()
	s := t.session
	if s == nil {
		t.mu.Unlock()
		return connectionError(t.url, "subscribe", errors.New("not connected"))
	}
	// As with MQTT, subscribing to a topic again replaces the previous subscription.
	for _, topic := range topics {
		s.handlers[topic] = handler
	}
	t.mu.Unlock()

	// Retained payloads go to new subscribers only.
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	for _, topic := range topics {
		if payload, ok := t.broker.retained[topic]; ok {
			t.mu.Lock()
			if t.session == s {
				s.queue = append(s.queue, delivery{topic: topic, payload: payload})
				s.cond.Signal()
			}
			t.mu.Unlock()
		}
	}
	return nil
}
