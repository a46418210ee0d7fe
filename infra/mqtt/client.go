package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/rlust/rvcctl/core/transport"
	"github.com/rlust/rvcctl/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	// TimeoutMS bounds every broker hand-off (connect, publish, subscribe).
	TimeoutMS int `json:"timeout_ms"`

	TLSConfig *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "rvcctl_" + uuid.NewString()[:8]
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	return nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoTransport implements transport.Transport using Eclipse Paho.
type PahoTransport struct {
	cli     pahoClient
	timeout time.Duration
	logger  logger.Logger
}

// NewPahoTransport connects to the MQTT broker.
func NewPahoTransport(cfg Config) (*PahoTransport, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New("mqtt_transport")
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.ConnectTimeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	t := &PahoTransport{
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		logger:  log,
	}
	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrConnect, token.Error())
	}
	t.cli = cli
	return t, nil
}

// Publish hands the payload to the broker with QoS 0 and no retain, matching
// the bridge's own command traffic.
func (t *PahoTransport) Publish(topic string, payload []byte) error {
	if !t.cli.IsConnected() {
		return fmt.Errorf("%w: not connected", transport.ErrConnect)
	}
	token := t.cli.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(t.timeout) {
		return fmt.Errorf("%w: hand-off timeout on %s", transport.ErrPublish, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrPublish, err)
	}
	return nil
}

// SubscribeOnce waits for the first message on topic. The subscription is
// released before returning on every path.
func (t *PahoTransport) SubscribeOnce(ctx context.Context, topic string, wait time.Duration) (transport.Message, error) {
	if !t.cli.IsConnected() {
		return transport.Message{}, fmt.Errorf("%w: not connected", transport.ErrConnect)
	}
	ch := make(chan transport.Message, 1)
	token := t.cli.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		msg := transport.Message{Topic: m.Topic(), Payload: m.Payload(), ReceivedAt: time.Now()}
		select {
		case ch <- msg:
		default:
		}
	})
	if !token.WaitTimeout(t.timeout) || token.Error() != nil {
		return transport.Message{}, fmt.Errorf("%w: subscribe %s: %v", transport.ErrConnect, topic, token.Error())
	}
	defer func() {
		if tok := t.cli.Unsubscribe(topic); tok.WaitTimeout(t.timeout) && tok.Error() != nil {
			t.logger.Errorf("unsubscribe %s: %v", topic, tok.Error())
		}
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case <-timer.C:
		return transport.Message{}, transport.ErrNoMessage
	}
}

// Subscribe attaches a streaming handler and returns its release function.
func (t *PahoTransport) Subscribe(topic string, handler func(transport.Message)) (func() error, error) {
	if !t.cli.IsConnected() {
		return nil, fmt.Errorf("%w: not connected", transport.ErrConnect)
	}
	token := t.cli.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		handler(transport.Message{Topic: m.Topic(), Payload: m.Payload(), ReceivedAt: time.Now()})
	})
	if !token.WaitTimeout(t.timeout) || token.Error() != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", transport.ErrConnect, topic, token.Error())
	}
	unsub := func() error {
		tok := t.cli.Unsubscribe(topic)
		if !tok.WaitTimeout(t.timeout) {
			return fmt.Errorf("%w: unsubscribe timeout on %s", transport.ErrConnect, topic)
		}
		return tok.Error()
	}
	return unsub, nil
}

// Close gracefully closes the MQTT connection.
func (t *PahoTransport) Close() {
	if t.cli != nil && t.cli.IsConnected() {
		t.cli.Disconnect(250)
	}
}
