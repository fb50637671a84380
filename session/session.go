// Package session implements the session lifecycle of the RED remote-object
// protocol.
//
// Every allocating or opening RPC is scoped to a server-issued session ID.
// Sessions are leases: the server drops a session (and every object reference
// it holds) unless the client refreshes it within the negotiated lifetime. A
// Session therefore owns a background keep-alive task that refreshes the lease
// on a fixed cadence.
//
// # Lifecycle
//
//	New → Create → (keep-alive ticks) → Expire
//
// Create expires any prior session first, so a Session value can be recycled.
// Expire is idempotent and safe from teardown paths: it stops the keep-alive
// task, clears every callback listener registered on this connection, forgets
// the session ID, and finally tells the server to expire the lease on a
// best-effort basis.
//
// The Session also owns the per-connection callback registry. Its lifetime is
// tied to the connection, not to a process-global table, so two connections
// never share listener state.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tfchina/brickv/callback"
	"github.com/tfchina/brickv/protocol"
)

const (
	// DefaultKeepAliveInterval is the cadence of keep-alive refreshes.
	DefaultKeepAliveInterval = 10 * time.Second

	// DefaultLifetime is the session lifetime requested from the server,
	// 3.5 keep-alive intervals. The margin leaves at least three refresh
	// opportunities before the server-side lease runs out.
	DefaultLifetime = 35 * time.Second
)

// lifetimeMarginFactor is the minimum ratio of lifetime to keep-alive
// interval. Configurations below it would risk server-side expiry after a
// couple of lost keep-alives.
const lifetimeMarginFactor = 3.5

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithKeepAliveInterval sets the keep-alive cadence.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(s *Session) {
		s.keepAliveInterval = interval
	}
}

// WithLifetime sets the session lifetime requested from the server.
func WithLifetime(lifetime time.Duration) Option {
	return func(s *Session) {
		s.lifetime = lifetime
	}
}

// Session is a time-limited authorization context on the server. A Session is
// safe for concurrent use; the keep-alive task runs on its own goroutine.
type Session struct {
	transport protocol.Transport
	callbacks *callback.Registry
	log       zerolog.Logger
	traceID   uuid.UUID

	keepAliveInterval time.Duration
	lifetime          time.Duration

	mu            sync.Mutex
	id            protocol.SessionID
	attached      bool
	stopKeepAlive chan struct{}
}

// New creates a Session bound to the given transport. The session is not yet
// created on the server; call Create.
func New(transport protocol.Transport, opts ...Option) (*Session, error) {
	s := &Session{
		transport:         transport,
		log:               zerolog.Nop(),
		traceID:           uuid.New(),
		keepAliveInterval: DefaultKeepAliveInterval,
		lifetime:          DefaultLifetime,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.keepAliveInterval <= 0 {
		return nil, fmt.Errorf("keep-alive interval must be positive, got %v", s.keepAliveInterval)
	}
	if s.lifetime.Seconds() < lifetimeMarginFactor*s.keepAliveInterval.Seconds() {
		return nil, fmt.Errorf("lifetime %v must be at least %.1fx the keep-alive interval %v",
			s.lifetime, lifetimeMarginFactor, s.keepAliveInterval)
	}

	s.log = s.log.With().Str("session_trace", s.traceID.String()).Logger()
	s.callbacks = callback.NewRegistry(transport, s.log)

	return s, nil
}

// Transport returns the underlying transport.
func (s *Session) Transport() protocol.Transport {
	return s.transport
}

// Callbacks returns the per-connection callback registry.
func (s *Session) Callbacks() *callback.Registry {
	return s.callbacks
}

// Logger returns the session's logger. A pointer, so zerolog's log-level
// methods can be called on the result directly.
func (s *Session) Logger() *zerolog.Logger {
	return &s.log
}

// ID returns the server-issued session ID and whether the session is
// currently created.
func (s *Session) ID() (protocol.SessionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.attached
}

// Alive reports whether the session is currently created.
func (s *Session) Alive() bool {
	_, ok := s.ID()
	return ok
}

// Create allocates a session on the server and starts the keep-alive task.
// Any prior session held by this value is expired first. On failure the
// session stays unattached.
func (s *Session) Create() error {
	s.Expire()

	id, code, err := s.transport.CreateSession(lifetimeSeconds(s.lifetime))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not create session", code)
	}

	s.mu.Lock()
	s.id = id
	s.attached = true
	s.stopKeepAlive = make(chan struct{})
	stop := s.stopKeepAlive
	s.mu.Unlock()

	s.log.Debug().Uint16("session_id", uint16(id)).Msg("session created")

	go s.keepAliveLoop(stop)

	return nil
}

// Expire ends the session. It stops the keep-alive task, clears every
// registered callback listener, forgets the session ID, and asks the server
// to expire the lease without waiting for an answer. Expiring an unattached
// session is a no-op; safe to call from teardown paths.
func (s *Session) Expire() {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}

	close(s.stopKeepAlive)
	s.stopKeepAlive = nil

	id := s.id
	s.id = 0
	s.attached = false
	s.mu.Unlock()

	// Drop every listener before the server forgets the objects, so no
	// handle retains a dangling subscription across session death.
	s.callbacks.RemoveAll()

	if err := s.transport.ExpireSessionUnchecked(id); err != nil {
		// Best effort: the client-side state is gone regardless.
		s.log.Debug().Err(err).Uint16("session_id", uint16(id)).Msg("expire session failed")
	}

	s.log.Debug().Uint16("session_id", uint16(id)).Msg("session expired")
}

// Close implements io.Closer by expiring the session.
func (s *Session) Close() error {
	s.Expire()
	return nil
}

func (s *Session) keepAliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.keepAlive()
		}
	}
}

// keepAlive refreshes the server-side lease once. Failures are logged but
// never stop the loop: a transient network failure must not kill the session.
func (s *Session) keepAlive() {
	id, ok := s.ID()
	if !ok {
		return
	}

	code, err := s.transport.KeepSessionAlive(id, lifetimeSeconds(s.lifetime))
	if err != nil {
		s.log.Warn().Err(err).Uint16("session_id", uint16(id)).Msg("keep-alive failed")
		return
	}
	if code != protocol.ESuccess {
		s.log.Warn().Stringer("code", code).Uint16("session_id", uint16(id)).Msg("keep-alive rejected")
	}
}

func lifetimeSeconds(lifetime time.Duration) uint32 {
	return uint32(lifetime / time.Second)
}
