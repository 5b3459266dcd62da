package realtime

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS push transport.
type NATSConfig struct {
	URL string
	// Name identifies the client connection on the server.
	Name string
	// Buffer is the inbound message buffer per session.
	Buffer int
}

// DefaultNATSConfig returns default NATS transport configuration.
func DefaultNATSConfig(url string) NATSConfig {
	if url == "" {
		url = nats.DefaultURL
	}
	return NATSConfig{
		URL:    url,
		Name:   "liveauction-view",
		Buffer: 256,
	}
}

// NATSTransport dials push sessions against a NATS server, one connection and
// one subject subscription per session. The client-side auto-reconnect is
// disabled: the supervisor owns the reconnection policy.
type NATSTransport struct {
	config NATSConfig
}

// NewNATSTransport creates a NATS push transport.
func NewNATSTransport(config NATSConfig) *NATSTransport {
	if config.Buffer <= 0 {
		config.Buffer = 256
	}
	return &NATSTransport{config: config}
}

func (t *NATSTransport) Dial(ctx context.Context, topic string) (Session, error) {
	done := make(chan struct{})

	opts := []nats.Option{
		nats.Name(t.config.Name),
		nats.NoReconnect(),
		nats.ClosedHandler(func(nc *nats.Conn) {
			close(done)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", t.config.URL, err)
	}
	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	msgs := make(chan *nats.Msg, t.config.Buffer)
	sub, err := nc.ChanSubscribe(topic, msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to subject %s: %w", topic, err)
	}

	return &natsSession{nc: nc, sub: sub, msgs: msgs, done: done}, nil
}

type natsSession struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	msgs chan *nats.Msg
	done chan struct{}
}

func (s *natsSession) Publish(destination string, body []byte) error {
	if err := s.nc.Publish(destination, body); err != nil {
		return fmt.Errorf("publish to subject %s: %w", destination, err)
	}
	return nil
}

func (s *natsSession) Receive() ([]byte, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, ErrSessionClosed
		}
		return msg.Data, nil
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

func (s *natsSession) Close() error {
	if err := s.sub.Unsubscribe(); err != nil {
		log.Debug().Err(err).Msg("failed to unsubscribe push subject")
	}
	s.nc.Close()
	return nil
}
