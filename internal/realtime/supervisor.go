package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the supervisor's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the supervisor's retry policy. The delay is constant, not
// exponential: the connection backs a short-lived, user-visible auction page.
type Config struct {
	ReconnectDelay time.Duration
	MaxRetries     int
	DialTimeout    time.Duration
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 3 * time.Second,
		MaxRetries:     3,
		DialTimeout:    10 * time.Second,
	}
}

// Handler receives every accepted inbound payload, in receipt order. It is
// never called concurrently.
type Handler func(payload []byte)

// Supervisor owns one push session for one auction topic. It recovers from
// transport failures with a bounded number of fixed-delay reconnection
// attempts and distinguishes intentional teardown from network loss, so
// closing a view never triggers a reconnect storm.
type Supervisor struct {
	topic     string
	transport Transport
	handler   Handler
	config    Config
	clock     clockwork.Clock

	joinDestination string
	joinBody        []byte
	onState         func(State)

	mu          sync.Mutex
	state       State
	session     Session
	retries     int
	retryTimer  clockwork.Timer
	retryCancel chan struct{}
	closing     bool
	runCtx      context.Context
	cancelRun   context.CancelFunc
}

// NewSupervisor creates a supervisor for one auction topic. handler receives
// every inbound payload once the connection is up.
func NewSupervisor(transport Transport, topic string, handler Handler, config Config, clock clockwork.Clock) *Supervisor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Supervisor{
		topic:     topic,
		transport: transport,
		handler:   handler,
		config:    config,
		clock:     clock,
		state:     StateDisconnected,
	}
}

// SetJoinNotice configures the presence announcement published once per
// successful (re)connection. Must be called before Start.
func (s *Supervisor) SetJoinNotice(destination string, body []byte) {
	s.joinDestination = destination
	s.joinBody = body
}

// OnStateChange registers a callback notified (asynchronously) on every state
// transition. Must be called before Start.
func (s *Supervisor) OnStateChange(fn func(State)) {
	s.onState = fn
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins connecting. It returns immediately; progress is observable via
// State and the state-change callback.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closing || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancelRun = cancel
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	go s.connect(runCtx)
}

// Send publishes body to destination over the live session. When the
// connection is not up the message is dropped with a diagnostic; transport
// errors never reach the caller.
func (s *Supervisor) Send(destination string, body []byte) {
	s.mu.Lock()
	session := s.session
	state := s.state
	s.mu.Unlock()

	if state != StateConnected || session == nil {
		log.Warn().
			Str("destination", destination).
			Stringer("state", state).
			Msg("dropping outbound message, push connection not connected")
		return
	}
	if err := session.Publish(destination, body); err != nil {
		log.Error().Err(err).Str("destination", destination).Msg("failed to publish outbound message")
	}
}

// SetOnline feeds the host environment's connectivity signal into the state
// machine. Offline moves any state to failed and stops retrying; online
// re-arms reconnection from the failed state.
func (s *Supervisor) SetOnline(online bool) {
	if online {
		s.mu.Lock()
		if s.closing || s.state != StateFailed || s.runCtx == nil {
			s.mu.Unlock()
			return
		}
		s.retries = 0
		s.setStateLocked(StateReconnecting)
		ctx := s.runCtx
		s.mu.Unlock()

		log.Info().Str("topic", s.topic).Msg("network back online, re-arming push connection")
		s.scheduleReconnect(ctx)
		return
	}

	s.mu.Lock()
	if s.closing || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.stopRetryTimerLocked()
	session := s.session
	s.session = nil
	s.setStateLocked(StateFailed)
	s.mu.Unlock()

	if session != nil {
		session.Close()
	}
	log.Warn().Str("topic", s.topic).Msg("host offline, push connection suspended")
}

// Close tears the supervisor down: the pending reconnect timer is cancelled,
// the session is closed and no further reconnection happens. Idempotent.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.stopRetryTimerLocked()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	session := s.session
	s.session = nil
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if session != nil {
		session.Close()
	}
	log.Info().Str("topic", s.topic).Msg("push connection closed")
	return nil
}

func (s *Supervisor) connect(ctx context.Context) {
	dialCtx := ctx
	if s.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.config.DialTimeout)
		defer cancel()
	}
	session, err := s.transport.Dial(dialCtx, s.topic)

	s.mu.Lock()
	if s.closing || s.state == StateFailed {
		s.mu.Unlock()
		if err == nil {
			session.Close()
		}
		return
	}
	if err != nil {
		s.retries++
		attempt := s.retries
		s.mu.Unlock()
		log.Warn().
			Err(err).
			Str("topic", s.topic).
			Int("attempt", attempt).
			Msg("push connection attempt failed")
		s.scheduleReconnect(ctx)
		return
	}
	s.session = session
	s.retries = 0
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	if s.joinDestination != "" {
		if err := session.Publish(s.joinDestination, s.joinBody); err != nil {
			log.Error().Err(err).Str("destination", s.joinDestination).Msg("failed to announce presence")
		}
	}
	log.Info().Str("topic", s.topic).Msg("push connection established")

	go s.readLoop(session)
}

func (s *Supervisor) readLoop(session Session) {
	for {
		payload, err := session.Receive()
		if err != nil {
			s.sessionClosed(session, err)
			return
		}
		if s.handler != nil {
			s.handler(payload)
		}
	}
}

func (s *Supervisor) sessionClosed(session Session, cause error) {
	s.mu.Lock()
	if s.session != session {
		// Stale read loop of a session that was already replaced or torn down.
		s.mu.Unlock()
		return
	}
	s.session = nil
	if s.closing || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	s.mu.Unlock()

	log.Warn().Err(cause).Str("topic", s.topic).Msg("push connection lost")
	s.scheduleReconnect(ctx)
}

// scheduleReconnect arms at most one pending reconnection attempt. Once the
// attempt count reaches the configured maximum the supervisor settles in the
// failed state until SetOnline(true) re-arms it.
func (s *Supervisor) scheduleReconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing || s.state == StateFailed || ctx == nil || ctx.Err() != nil {
		return
	}
	if s.retryTimer != nil {
		return
	}
	if s.retries >= s.config.MaxRetries {
		s.setStateLocked(StateFailed)
		log.Error().
			Str("topic", s.topic).
			Int("attempts", s.retries).
			Msg("push connection retries exhausted")
		return
	}

	s.setStateLocked(StateReconnecting)
	timer := s.clock.NewTimer(s.config.ReconnectDelay)
	cancel := make(chan struct{})
	s.retryTimer = timer
	s.retryCancel = cancel

	go func() {
		select {
		case <-timer.Chan():
			s.mu.Lock()
			if s.retryTimer == timer {
				s.retryTimer = nil
				s.retryCancel = nil
			}
			if s.closing || s.state != StateReconnecting {
				s.mu.Unlock()
				return
			}
			s.setStateLocked(StateConnecting)
			s.mu.Unlock()
			s.connect(ctx)
		case <-cancel:
			// The timer was stopped by whoever closed the channel.
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			s.mu.Lock()
			if s.retryTimer == timer {
				s.retryTimer = nil
				s.retryCancel = nil
			}
			s.mu.Unlock()
		}
	}()

	log.Info().
		Str("topic", s.topic).
		Dur("delay", s.config.ReconnectDelay).
		Int("attempt", s.retries+1).
		Msg("reconnect scheduled")
}

// stopRetryTimerLocked stops a pending retry timer and releases the goroutine
// waiting on it. Must be called with s.mu held.
func (s *Supervisor) stopRetryTimerLocked() {
	if s.retryTimer == nil {
		return
	}
	stopAndDrainTimer(s.retryTimer)
	close(s.retryCancel)
	s.retryTimer = nil
	s.retryCancel = nil
}

func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	log.Debug().
		Str("topic", s.topic).
		Stringer("from", prev).
		Stringer("to", next).
		Msg("push connection state changed")
	if s.onState != nil {
		go s.onState(next)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following the
// pattern recommended in the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
