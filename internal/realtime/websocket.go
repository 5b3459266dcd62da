package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketConfig holds configuration for the WebSocket push transport.
type WebSocketConfig struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
}

// DefaultWebSocketConfig returns default WebSocket transport configuration.
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   4096,
	}
}

// wsFrame is the control envelope exchanged with the push endpoint.
type wsFrame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// WebSocketTransport dials push sessions over a WebSocket endpoint. The topic
// subscription is sent as the first frame of each session.
type WebSocketTransport struct {
	config WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a WebSocket push transport.
func NewWebSocketTransport(config WebSocketConfig) *WebSocketTransport {
	return &WebSocketTransport{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (t *WebSocketTransport) Dial(ctx context.Context, topic string) (Session, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.config.URL, t.config.Header)
	if err != nil {
		return nil, fmt.Errorf("dial push endpoint %s: %w", t.config.URL, err)
	}

	conn.SetReadLimit(t.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		return nil
	})

	session := &wsSession{
		conn:   conn,
		config: t.config,
		done:   make(chan struct{}),
	}
	if err := session.writeFrame(wsFrame{Type: "SUBSCRIBE", Destination: topic}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to topic %s: %w", topic, err)
	}

	go session.pingLoop()
	return session, nil
}

type wsSession struct {
	conn   *websocket.Conn
	config WebSocketConfig

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsSession) Publish(destination string, body []byte) error {
	return s.writeFrame(wsFrame{Type: "SEND", Destination: destination, Body: body})
}

func (s *wsSession) writeFrame(frame wsFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(frame)
}

func (s *wsSession) Receive() ([]byte, error) {
	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		select {
		case <-s.done:
			return nil, ErrSessionClosed
		default:
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			return nil, fmt.Errorf("push connection closed unexpectedly: %w", err)
		}
		return nil, err
	}
	return data, nil
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		deadline := time.Now().Add(s.config.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Msg("failed to send close frame")
		}
		s.writeMu.Unlock()

		s.conn.Close()
	})
	return nil
}

// pingLoop keeps the connection alive; the server's pongs extend the read
// deadline via the pong handler.
func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("push connection ping failed")
				return
			}
		}
	}
}
