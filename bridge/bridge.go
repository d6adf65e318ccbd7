// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the terminal-side multiplexer. It accepts plain
// connections from trading terminals on a loopback listener, holds the
// one authenticated upstream link to the relay, and routes each relay
// confirmation back to the terminal that submitted the signal.
//
// Terminals connect without credentials; the bridge holds the secret
// and trusts the loopback boundary. When the upstream link is down,
// submissions are answered immediately with an error confirmation so a
// terminal never waits on a dead relay.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/lib/netutil"
	"github.com/tradewire-foundation/tradewire/protocol"
	"github.com/tradewire-foundation/tradewire/session"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultReconnectMinDelay = time.Second
	DefaultReconnectMaxDelay = 64 * time.Second
	DefaultOutboxSize        = 256
)

// Config holds the parameters for a Bridge.
type Config struct {
	// Listen is the local terminal listener address. Bind loopback:
	// local connections are not authenticated.
	Listen string

	// RelayAddress is the upstream relay (host:port). Required unless
	// Dial is set.
	RelayAddress string

	// SecretKey authenticates the bridge to the relay. Required.
	SecretKey string

	// MaxPayload caps frame payloads. Zero uses the protocol default.
	MaxPayload int

	// ReconnectMinDelay and ReconnectMaxDelay bound the exponential
	// backoff between upstream connection attempts.
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration

	// OutboxSize is how many signals may wait for the upstream writer.
	OutboxSize int

	// PingInterval and IdleTimeout tune the upstream heartbeat. Zero
	// uses the session defaults.
	PingInterval time.Duration
	IdleTimeout  time.Duration

	// Dial opens the upstream connection. Defaults to a TCP dial of
	// RelayAddress; override for TLS or tests.
	Dial func(ctx context.Context) (net.Conn, error)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Bridge is the local multiplexer.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock
	router *router

	outbox chan protocol.Signal

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	upstream *session.Session
	locals   map[uint64]*localClient
}

// New creates a bridge. Start begins serving.
func New(cfg Config) (*Bridge, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("bridge: SecretKey is required")
	}
	if cfg.RelayAddress == "" && cfg.Dial == nil {
		return nil, fmt.Errorf("bridge: RelayAddress is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.ReconnectMinDelay <= 0 {
		cfg.ReconnectMinDelay = DefaultReconnectMinDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Dial == nil {
		address := cfg.RelayAddress
		cfg.Dial = func(ctx context.Context) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "tcp", address)
		}
	}

	return &Bridge{
		cfg:    cfg,
		logger: logger,
		clock:  cfg.Clock,
		router: newRouter(),
		outbox: make(chan protocol.Signal, cfg.OutboxSize),
		locals: make(map[uint64]*localClient),
	}, nil
}

// Start binds the local listener and launches the accept loop and the
// upstream connection manager.
func (b *Bridge) Start() error {
	listener, err := net.Listen("tcp", b.cfg.Listen)
	if err != nil {
		return fmt.Errorf("bridge: listening on %s: %w", b.cfg.Listen, err)
	}
	b.listener = listener
	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.runUpstream()
	}()
	go func() {
		defer b.wg.Done()
		b.acceptLoop()
	}()

	b.logger.Info("bridge listening",
		"address", listener.Addr(),
		"relay", b.cfg.RelayAddress,
	)
	return nil
}

// Addr returns the bound local listener address.
func (b *Bridge) Addr() net.Addr { return b.listener.Addr() }

// Stop closes the listener, the upstream link, and every local
// connection, then waits for all handlers.
func (b *Bridge) Stop() {
	b.cancel()
	b.listener.Close()

	b.mu.Lock()
	if b.upstream != nil {
		b.upstream.Close()
	}
	for _, client := range b.locals {
		client.sess.Close()
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("bridge stopped")
}

// Connected reports whether the upstream link is authenticated and
// live.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upstream != nil
}

func (b *Bridge) acceptLoop() {
	var clientID uint64
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return
			}
			b.logger.Error("local accept failed", "error", err)
			continue
		}
		clientID++
		b.wg.Add(1)
		go func(id uint64, conn net.Conn) {
			defer b.wg.Done()
			b.handleLocal(id, conn)
		}(clientID, conn)
	}
}

func (b *Bridge) handleLocal(id uint64, conn net.Conn) {
	logger := b.logger.With("local_conn", id)

	sess := session.New(session.Config{
		Conn:       conn,
		Clock:      b.clock,
		Logger:     logger,
		MaxPayload: b.cfg.MaxPayload,
		// Terminals drive their own heartbeat; the bridge neither pings
		// nor times out local connections.
		PingInterval: -1,
		IdleTimeout:  -1,
	})
	defer sess.Close()
	client := &localClient{id: id, sess: sess}

	b.mu.Lock()
	b.locals[id] = client
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.locals, id)
		b.mu.Unlock()
		b.router.dropClient(id)
	}()

	logger.Info("terminal connected", "remote", conn.RemoteAddr())
	err := sess.Run(b.ctx, func(msg protocol.Message) {
		switch m := msg.(type) {
		case protocol.Signal:
			b.submitLocal(client, logger, m)
		case protocol.Auth:
			// Terminals configured to talk to the relay directly still
			// open with an auth frame; accept it so they proceed.
			sess.Send(protocol.Confirmation{Status: protocol.StatusSuccess, Message: "authenticated"})
		default:
			logger.Warn("unexpected message from terminal", "type", fmt.Sprintf("%T", msg))
		}
	})
	if err == nil || netutil.IsExpectedCloseError(err) || b.ctx.Err() != nil {
		logger.Info("terminal disconnected")
	} else {
		logger.Warn("terminal connection failed", "error", err)
	}
}

// submitLocal registers the reply route and hands the signal to the
// upstream writer. Failures are answered locally so the terminal never
// hangs on a dead link.
func (b *Bridge) submitLocal(client *localClient, logger *slog.Logger, sig protocol.Signal) {
	if sig.ClientMsgID == "" {
		client.sess.Send(protocol.Confirmation{
			Status:  protocol.StatusError,
			Message: "client_msg_id is required",
		})
		return
	}

	if !b.Connected() {
		client.sess.Send(protocol.Confirmation{
			Status:      protocol.StatusError,
			Message:     "bridge is not connected to the relay",
			ClientMsgID: sig.ClientMsgID,
		})
		return
	}

	b.router.register(sig.ClientMsgID, client)
	select {
	case b.outbox <- sig:
		logger.Debug("signal forwarded",
			"client_msg_id", sig.ClientMsgID,
			"action", sig.Action,
		)
	default:
		// Only the rejected submission loses its route; the terminal's
		// earlier signals are still in flight and keep theirs.
		b.router.drop(sig.ClientMsgID)
		client.sess.Send(protocol.Confirmation{
			Status:      protocol.StatusError,
			Message:     "bridge outbox is full",
			ClientMsgID: sig.ClientMsgID,
		})
	}
}

// deliverConfirmation routes one relay reply back to the waiting
// terminal. Unroutable replies are logged and dropped; the relay's
// store is the durable record.
func (b *Bridge) deliverConfirmation(confirmation protocol.Confirmation) {
	client, ok := b.router.resolve(confirmation)
	if !ok {
		b.logger.Warn("dropping unroutable confirmation",
			"client_msg_id", confirmation.ClientMsgID,
			"open_client_msg_id", confirmation.OpenClientMsgID,
			"signal_id", confirmation.SignalID,
		)
		return
	}
	if err := client.sess.Send(confirmation); err != nil {
		b.logger.Warn("delivering confirmation failed",
			"local_conn", client.id,
			"error", err,
		)
	}
}
