package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/rlust/rvcctl/core/transport"
	"github.com/rlust/rvcctl/infra/logger"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	subscribeErr error
	published    []published
	handlers     map[string]paho.MessageHandler
	unsubscribed []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true, handlers: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() paho.Token {
	if c.connectErr == nil {
		c.connected = true
	}
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr == nil {
		c.published = append(c.published, published{topic: topic, payload: payload.([]byte)})
	}
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr == nil {
		c.handlers[topic] = callback
	}
	return &fakeToken{err: c.subscribeErr}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
		c.unsubscribed = append(c.unsubscribed, t)
	}
	return &fakeToken{}
}

func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(nil, &fakeMessage{topic: topic, payload: payload})
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func fakeTransport(cli *fakeClient) *PahoTransport {
	return &PahoTransport{cli: cli, timeout: time.Second, logger: logger.NopLogger{}}
}

func TestNewPahoTransport(t *testing.T) {
	orig := newMQTTClient
	defer func() { newMQTTClient = orig }()

	cli := newFakeClient()
	cli.connected = false
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return cli }

	tr, err := NewPahoTransport(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatalf("NewPahoTransport: %v", err)
	}
	if !cli.connected {
		t.Fatal("client never connected")
	}
	tr.Close()
	if cli.connected {
		t.Fatal("Close did not disconnect")
	}
}

func TestNewPahoTransportConnectError(t *testing.T) {
	orig := newMQTTClient
	defer func() { newMQTTClient = orig }()

	cli := newFakeClient()
	cli.connected = false
	cli.connectErr = errors.New("refused")
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return cli }

	_, err := NewPahoTransport(Config{Broker: "tcp://localhost:1883"})
	if !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestNewPahoTransportRequiresBroker(t *testing.T) {
	if _, err := NewPahoTransport(Config{}); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestPublish(t *testing.T) {
	cli := newFakeClient()
	tr := fakeTransport(cli)

	if err := tr.Publish("RVC/THERMOSTAT_COMMAND_1/2", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(cli.published) != 1 || cli.published[0].topic != "RVC/THERMOSTAT_COMMAND_1/2" {
		t.Fatalf("publish not handed off: %+v", cli.published)
	}

	cli.publishErr = errors.New("broker rejected")
	if err := tr.Publish("t", nil); !errors.Is(err, transport.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}

	cli.connected = false
	if err := tr.Publish("t", nil); !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect when disconnected, got %v", err)
	}
}

func TestSubscribeOnceDelivers(t *testing.T) {
	cli := newFakeClient()
	tr := fakeTransport(cli)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cli.deliver("RVC/THERMOSTAT_STATUS_1/2", []byte(`{"fan speed":50}`))
	}()

	msg, err := tr.SubscribeOnce(context.Background(), "RVC/THERMOSTAT_STATUS_1/2", time.Second)
	if err != nil {
		t.Fatalf("SubscribeOnce: %v", err)
	}
	if msg.Topic != "RVC/THERMOSTAT_STATUS_1/2" || string(msg.Payload) != `{"fan speed":50}` {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(cli.unsubscribed) != 1 {
		t.Fatalf("subscription leaked: %+v", cli.unsubscribed)
	}
}

func TestSubscribeOnceTimeout(t *testing.T) {
	cli := newFakeClient()
	tr := fakeTransport(cli)

	_, err := tr.SubscribeOnce(context.Background(), "RVC/THERMOSTAT_STATUS_1/2", 30*time.Millisecond)
	if !errors.Is(err, transport.ErrNoMessage) {
		t.Fatalf("expected ErrNoMessage, got %v", err)
	}
	if len(cli.unsubscribed) != 1 {
		t.Fatal("subscription leaked after an empty window")
	}
}

func TestSubscribeOnceCancel(t *testing.T) {
	cli := newFakeClient()
	tr := fakeTransport(cli)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.SubscribeOnce(ctx, "t", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(cli.unsubscribed) != 1 {
		t.Fatal("subscription leaked after cancellation")
	}
}

func TestSubscribeStream(t *testing.T) {
	cli := newFakeClient()
	tr := fakeTransport(cli)

	var mu sync.Mutex
	var got []transport.Message
	unsub, err := tr.Subscribe("RVC/THERMOSTAT_STATUS_1/+", func(m transport.Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cli.deliver("RVC/THERMOSTAT_STATUS_1/+", []byte("a"))
	cli.deliver("RVC/THERMOSTAT_STATUS_1/+", []byte("b"))
	if err := unsub(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	if len(cli.unsubscribed) != 1 {
		t.Fatal("unsubscribe never reached the client")
	}
}

func TestSubscribeErrors(t *testing.T) {
	cli := newFakeClient()
	cli.subscribeErr = errors.New("not authorized")
	tr := fakeTransport(cli)

	if _, err := tr.Subscribe("t", func(transport.Message) {}); !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if _, err := tr.SubscribeOnce(context.Background(), "t", time.Second); !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}
