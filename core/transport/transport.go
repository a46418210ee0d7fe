package transport

import (
	"context"
	"errors"
	"time"
)

// Message is one delivery from the broker.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// ErrConnect reports that the broker is unreachable or the connection was
// refused. It is never conflated with an empty read window.
var ErrConnect = errors.New("broker connection failed")

// ErrPublish reports that the broker rejected or dropped a publish hand-off.
var ErrPublish = errors.New("publish rejected")

// ErrNoMessage reports that no message arrived before the read window
// closed. It is an expected outcome, not a transport fault.
var ErrNoMessage = errors.New("no message before timeout")

// Transport wraps the pub/sub broker. Publish is fire-and-forget beyond the
// broker hand-off; retry logic lives with the callers.
type Transport interface {
	// Publish hands a payload to the broker. It blocks at most for the
	// configured hand-off timeout.
	Publish(topic string, payload []byte) error

	// SubscribeOnce waits up to wait for the next message on topic and
	// returns it, or ErrNoMessage. The subscription is released on every
	// exit path, including cancellation.
	SubscribeOnce(ctx context.Context, topic string, wait time.Duration) (Message, error)

	// Subscribe attaches a streaming handler for the topic pattern and
	// returns the function that releases the subscription.
	Subscribe(topic string, handler func(Message)) (func() error, error)

	// Close releases the broker connection.
	Close()
}
