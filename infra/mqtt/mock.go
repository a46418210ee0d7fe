package mqtt

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rlust/rvcctl/core/transport"
)

// MockTransport is an in-memory transport used in tests.
type MockTransport struct {
	mu sync.Mutex
	// Published records every Publish call in order.
	Published []transport.Message
	// PublishErr, when set, fails every Publish.
	PublishErr error
	// SubscribeErr, when set, fails SubscribeOnce and Subscribe.
	SubscribeErr error

	queues   map[string][][]byte
	handlers map[string][]func(transport.Message)
	// OnPublish, when set, observes each successful publish. Used to
	// simulate a responding device.
	OnPublish func(topic string, payload []byte)
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		queues:   make(map[string][][]byte),
		handlers: make(map[string][]func(transport.Message)),
	}
}

// Enqueue queues a payload to be returned by the next SubscribeOnce on topic.
func (m *MockTransport) Enqueue(topic string, payload []byte) {
	m.mu.Lock()
	m.queues[topic] = append(m.queues[topic], payload)
	m.mu.Unlock()
}

// Deliver pushes a message to all matching streaming subscribers.
func (m *MockTransport) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	var targets []func(transport.Message)
	for pattern, hs := range m.handlers {
		if TopicMatches(pattern, topic) {
			targets = append(targets, hs...)
		}
	}
	m.mu.Unlock()
	msg := transport.Message{Topic: topic, Payload: payload, ReceivedAt: time.Now()}
	for _, h := range targets {
		h(msg)
	}
}

func (m *MockTransport) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	err := m.PublishErr
	var observe func(string, []byte)
	if err == nil {
		m.Published = append(m.Published, transport.Message{Topic: topic, Payload: payload, ReceivedAt: time.Now()})
		observe = m.OnPublish
	}
	m.mu.Unlock()
	if observe != nil {
		observe(topic, payload)
	}
	return err
}

// PublishCount returns the number of successful publishes so far.
func (m *MockTransport) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

// SubscribeOnce pops the next queued payload for topic, or reports an empty
// read window immediately. Tests stay fast: the wait parameter only bounds,
// it never sleeps.
func (m *MockTransport) SubscribeOnce(ctx context.Context, topic string, wait time.Duration) (transport.Message, error) {
	if err := ctx.Err(); err != nil {
		return transport.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return transport.Message{}, m.SubscribeErr
	}
	q := m.queues[topic]
	if len(q) == 0 {
		return transport.Message{}, transport.ErrNoMessage
	}
	payload := q[0]
	m.queues[topic] = q[1:]
	return transport.Message{Topic: topic, Payload: payload, ReceivedAt: time.Now()}, nil
}

func (m *MockTransport) Subscribe(topic string, handler func(transport.Message)) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	m.handlers[topic] = append(m.handlers[topic], handler)
	idx := len(m.handlers[topic]) - 1
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		hs := m.handlers[topic]
		if idx < len(hs) {
			m.handlers[topic] = append(hs[:idx:idx], hs[idx+1:]...)
		}
		return nil
	}, nil
}

func (m *MockTransport) Close() {}

// TopicMatches implements MQTT topic filter matching for + and # wildcards.
func TopicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, seg := range pp {
		if seg == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if seg != "+" && seg != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}
