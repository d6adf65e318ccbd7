// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs one framed protocol connection: serialized
// writes, a read loop that answers pings automatically, periodic
// outbound pings, and an idle supervisor that tears down connections
// whose peer has gone silent.
//
// Both sides of the wire use it. The relay server calls ExpectAuth on
// accepted connections; the bridge calls Authenticate after dialing
// upstream. After the handshake, Run owns the connection until it
// closes.
package session

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/protocol"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
	DefaultAuthTimeout  = 10 * time.Second
)

// ErrAuthFailed reports a failed authentication handshake, on either
// side.
var ErrAuthFailed = errors.New("session: authentication failed")

// ErrIdleTimeout reports a connection torn down because the peer sent
// nothing (not even heartbeats) for longer than the idle timeout.
var ErrIdleTimeout = errors.New("session: connection idle timeout")

// Config holds the parameters for a Session.
type Config struct {
	Conn   net.Conn
	Clock  clock.Clock
	Logger *slog.Logger

	// MaxPayload caps frame payloads. Zero uses the protocol default.
	MaxPayload int

	// PingInterval is the gap between outbound pings. Zero uses the
	// default; negative disables outbound pings (the relay lets the
	// connecting side drive the heartbeat).
	PingInterval time.Duration

	// IdleTimeout is how long the peer may stay silent before the
	// connection is declared dead. Zero uses the default; negative
	// disables supervision.
	IdleTimeout time.Duration

	// AuthTimeout bounds the authentication handshake. Zero uses the
	// default.
	AuthTimeout time.Duration
}

// Session is one live protocol connection. Safe for concurrent use:
// Send may be called from any goroutine while Run owns the read side.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	clock  clock.Clock
	logger *slog.Logger

	maxPayload   int
	pingInterval time.Duration
	idleTimeout  time.Duration
	authTimeout  time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	// lastActivity is the clock.Now of the most recent inbound frame,
	// as unix nanos.
	lastActivity atomic.Int64
}

// New wraps an established connection. The caller runs the handshake
// (Authenticate or ExpectAuth) and then Run.
func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = DefaultPingInterval
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	authTimeout := cfg.AuthTimeout
	if authTimeout <= 0 {
		authTimeout = DefaultAuthTimeout
	}

	s := &Session{
		conn:         cfg.Conn,
		reader:       bufio.NewReader(cfg.Conn),
		clock:        cfg.Clock,
		logger:       logger,
		maxPayload:   cfg.MaxPayload,
		pingInterval: pingInterval,
		idleTimeout:  idleTimeout,
		authTimeout:  authTimeout,
	}
	s.touch()
	return s
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Send writes one message as a frame. Serialized: concurrent senders
// never interleave frame bytes.
func (s *Session) Send(msg protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteMessage(s.conn, msg, s.maxPayload)
}

// Close closes the connection. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Authenticate runs the connecting side of the handshake: send the
// secret, wait for a success confirmation. Any other reply, or a
// handshake slower than the auth timeout, is ErrAuthFailed.
func (s *Session) Authenticate(secretKey string) error {
	if err := s.Send(protocol.Auth{SecretKey: secretKey}); err != nil {
		return fmt.Errorf("session: sending auth: %w", err)
	}
	msg, err := s.readHandshake()
	if err != nil {
		return fmt.Errorf("session: waiting for auth reply: %w", err)
	}
	confirmation, ok := msg.(protocol.Confirmation)
	if !ok || confirmation.Status != protocol.StatusSuccess {
		return fmt.Errorf("%w: %s", ErrAuthFailed, describeReply(msg))
	}
	return nil
}

// ExpectAuth runs the accepting side of the handshake: the first frame
// must be an auth message carrying the right secret. On mismatch an
// error confirmation is sent and ErrAuthFailed returned; the caller
// closes the connection.
func (s *Session) ExpectAuth(secretKey string) error {
	msg, err := s.readHandshake()
	if err != nil {
		return fmt.Errorf("session: waiting for auth: %w", err)
	}
	auth, ok := msg.(protocol.Auth)
	if !ok {
		s.Send(protocol.Confirmation{Status: protocol.StatusError, Message: "authentication required"})
		return fmt.Errorf("%w: first frame was %s", ErrAuthFailed, describeReply(msg))
	}
	if subtle.ConstantTimeCompare([]byte(auth.SecretKey), []byte(secretKey)) != 1 {
		s.Send(protocol.Confirmation{Status: protocol.StatusError, Message: "invalid secret key"})
		return fmt.Errorf("%w: wrong secret", ErrAuthFailed)
	}
	if err := s.Send(protocol.Confirmation{Status: protocol.StatusSuccess, Message: "authenticated"}); err != nil {
		return fmt.Errorf("session: sending auth ack: %w", err)
	}
	s.touch()
	return nil
}

// readHandshake reads one message under a real-time deadline. Only the
// handshake uses read deadlines; afterwards the read loop blocks and
// liveness is the idle supervisor's job.
func (s *Session) readHandshake() (protocol.Message, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.authTimeout)); err != nil {
		return nil, err
	}
	defer s.conn.SetReadDeadline(time.Time{})
	return protocol.ReadMessage(s.reader, s.maxPayload)
}

// Run owns the connection: it reads frames until the peer disconnects,
// ctx is cancelled, or the idle supervisor gives up on the peer.
//
// Pings are answered with pongs and never reach the handler; pongs
// count as activity and are swallowed. Everything else is passed to
// handler synchronously from the read goroutine.
//
// Returns nil on a clean disconnect, ctx.Err() on cancellation,
// ErrIdleTimeout when the supervisor fired, and the read error
// otherwise.
func (s *Session) Run(ctx context.Context, handler func(protocol.Message)) error {
	readResult := make(chan error, 1)
	go func() {
		readResult <- s.readLoop(handler)
	}()

	tick := s.supervisionInterval()
	var tickerC <-chan time.Time
	if tick > 0 {
		ticker := s.clock.NewTicker(tick)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	lastPing := s.clock.Now()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			<-readResult
			return ctx.Err()

		case err := <-readResult:
			return err

		case <-tickerC:
			now := s.clock.Now()
			if s.idleTimeout > 0 && now.Sub(s.lastActivityTime()) > s.idleTimeout {
				s.logger.Warn("closing idle connection",
					"remote", s.conn.RemoteAddr(),
					"idle_timeout", s.idleTimeout,
				)
				s.Close()
				<-readResult
				return ErrIdleTimeout
			}
			if s.pingInterval > 0 && now.Sub(lastPing) >= s.pingInterval {
				lastPing = now
				if err := s.Send(protocol.NewPing()); err != nil {
					s.Close()
					<-readResult
					return fmt.Errorf("session: sending ping: %w", err)
				}
			}
		}
	}
}

// readLoop reads and dispatches frames until the connection errors.
func (s *Session) readLoop(handler func(protocol.Message)) error {
	for {
		msg, err := protocol.ReadMessage(s.reader, s.maxPayload)
		if err != nil {
			return err
		}
		s.touch()

		switch msg.(type) {
		case protocol.Ping:
			if err := s.Send(protocol.NewPong()); err != nil {
				return fmt.Errorf("session: answering ping: %w", err)
			}
		case protocol.Pong:
			// Activity already recorded.
		default:
			handler(msg)
		}
	}
}

// supervisionInterval is the ticker period for pings and idle checks.
func (s *Session) supervisionInterval() time.Duration {
	switch {
	case s.pingInterval > 0:
		return s.pingInterval
	case s.idleTimeout > 0:
		// Several checks per window, so a silent peer is torn down
		// within a small fraction of the timeout past its deadline.
		return s.idleTimeout / 6
	default:
		return 0
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}

func (s *Session) lastActivityTime() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func describeReply(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.Confirmation:
		if m.Message != "" {
			return fmt.Sprintf("%s: %s", m.Status, m.Message)
		}
		return m.Status
	default:
		return fmt.Sprintf("%T", msg)
	}
}
