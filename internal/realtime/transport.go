// Package realtime maintains the push connection that streams live auction
// events into a view, with a bounded-retry reconnection state machine.
package realtime

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by Session.Receive once the session is closed.
var ErrSessionClosed = errors.New("push session closed")

// Session is one live subscription to an auction topic.
type Session interface {
	// Publish sends a message to the given destination over this session.
	Publish(destination string, body []byte) error
	// Receive blocks until the next inbound payload arrives. It fails with
	// ErrSessionClosed or a transport error once the session is dead.
	Receive() ([]byte, error)
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Transport dials push sessions. Dialing includes subscribing to the topic, so
// a returned session is already receiving events for it.
type Transport interface {
	Dial(ctx context.Context, topic string) (Session, error)
}
