// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay is the server side of the signal pipeline: it accepts
// authenticated bridge connections, admits signals through the policy
// gate, records them durably, and answers each submission with exactly
// one confirmation.
//
// Signals whose durable accept fails transiently are parked in the
// reliability queue and retried in the background; the queue re-enters
// the same processing path, so a late success still records and
// notifies like an immediate one.
package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tradewire-foundation/tradewire/admission"
	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/lib/netutil"
	"github.com/tradewire-foundation/tradewire/notify"
	"github.com/tradewire-foundation/tradewire/protocol"
	"github.com/tradewire-foundation/tradewire/queue"
	"github.com/tradewire-foundation/tradewire/session"
	"github.com/tradewire-foundation/tradewire/store"
)

// Config holds the parameters for a Server.
type Config struct {
	// Listen is the TCP listen address.
	Listen string

	// SecretKey authenticates every inbound connection. Required.
	SecretKey string

	// MaxPayload caps frame payloads. Zero uses the protocol default.
	MaxPayload int

	// Workers is the signal-processing pool size. Defaults to 4.
	Workers int

	// TLS, when non-nil, wraps the listener.
	TLS *tls.Config

	// Admission is the signal admission policy.
	Admission admission.Config

	// Queue tunes the reliability queue. Accept and Sink are owned by
	// the server and must be left nil.
	Queue queue.Config

	// IdleTimeout bounds per-connection silence. Zero uses the session
	// default. The relay does not ping; connecting bridges drive the
	// heartbeat and the relay only enforces the idle timeout.
	IdleTimeout time.Duration

	Clock    clock.Clock
	Logger   *slog.Logger
	Store    *store.Store
	Notifier notify.Notifier
}

// Server is the relay server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	clock    clock.Clock
	store    *store.Store
	notifier notify.Notifier
	queue    *queue.Queue
	workers  *workerPool

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu           sync.Mutex
	sessions     map[uint64]*session.Session
	lastAccepted time.Time
}

// New creates a server. Start begins accepting connections.
func New(cfg Config) (*Server, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("relay: SecretKey is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("relay: Store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		clock:    cfg.Clock,
		store:    cfg.Store,
		notifier: notifier,
		sessions: make(map[uint64]*session.Session),
	}

	queueCfg := cfg.Queue
	queueCfg.Clock = cfg.Clock
	queueCfg.Logger = logger.With("component", "queue")
	queueCfg.Accept = s.retryAccept
	queueCfg.Sink = s
	q, err := queue.New(queueCfg)
	if err != nil {
		return nil, err
	}
	s.queue = q
	return s, nil
}

// Start binds the listener and launches the accept loop, the worker
// pool, and the reliability queue.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("relay: listening on %s: %w", s.cfg.Listen, err)
	}
	if s.cfg.TLS != nil {
		listener = tls.NewListener(listener, s.cfg.TLS)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.workers = newWorkerPool(s.cfg.Workers)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.queue.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.logger.Info("relay listening",
		"address", listener.Addr(),
		"tls", s.cfg.TLS != nil,
		"workers", s.cfg.Workers,
	)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Stop closes the listener and every live connection, then waits for
// all connection handlers and in-flight signal processing to finish.
func (s *Server) Stop() {
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.workers.Close()
	s.logger.Info("relay stopped")
}

func (s *Server) acceptLoop() {
	var connectionID uint64
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		connectionID++
		s.wg.Add(1)
		go func(id uint64, conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(id, conn)
		}(connectionID, conn)
	}
}

func (s *Server) handleConnection(id uint64, conn net.Conn) {
	logger := s.logger.With("conn", id, "remote", conn.RemoteAddr())

	sess := session.New(session.Config{
		Conn:       conn,
		Clock:      s.clock,
		Logger:     logger,
		MaxPayload: s.cfg.MaxPayload,
		// The connecting side pings; the relay only supervises.
		PingInterval: -1,
		IdleTimeout:  s.cfg.IdleTimeout,
	})
	defer sess.Close()

	if err := sess.ExpectAuth(s.cfg.SecretKey); err != nil {
		logger.Warn("authentication failed", "error", err)
		return
	}
	logger.Info("connection authenticated")

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}()

	err := sess.Run(s.ctx, func(msg protocol.Message) {
		switch m := msg.(type) {
		case protocol.Signal:
			// Submit returns only after the signal has been processed,
			// so frames from one connection are handled in receipt
			// order; the pool bounds work across connections.
			s.workers.Submit(func() {
				s.handleSignal(sess, logger, m)
			})
		default:
			logger.Warn("unexpected message", "type", fmt.Sprintf("%T", msg))
		}
	})
	switch {
	case err == nil || netutil.IsExpectedCloseError(err):
		logger.Info("connection closed")
	case s.ctx.Err() != nil:
		// Shutdown.
	default:
		logger.Warn("connection failed", "error", err)
	}
}

// handleSignal runs one live submission: process, then deliver the
// confirmation. A transient store failure parks the signal in the
// reliability queue and sends no confirmation; the sender's retry will
// be answered idempotently once the accept lands.
func (s *Server) handleSignal(sess *session.Session, logger *slog.Logger, sig protocol.Signal) {
	confirmation, err := s.processSignal(s.ctx, sig)
	if err != nil {
		if store.IsRetryable(err) {
			logger.Warn("durable accept failed, queueing for retry",
				"client_msg_id", sig.ClientMsgID,
				"error", err,
			)
			s.queue.Enqueue(sig)
			return
		}
		logger.Error("signal processing failed",
			"client_msg_id", sig.ClientMsgID,
			"error", err,
		)
		confirmation = protocol.Confirmation{
			Status:      protocol.StatusError,
			Message:     "internal error",
			ClientMsgID: sig.ClientMsgID,
		}
	}
	if err := sess.Send(confirmation); err != nil {
		logger.Warn("sending confirmation failed",
			"client_msg_id", sig.ClientMsgID,
			"error", err,
		)
	}
}

// retryAccept is the reliability queue's accept callback. It re-runs
// the full processing path; the original sender is gone, so the
// confirmation is logged instead of delivered.
func (s *Server) retryAccept(ctx context.Context, sig protocol.Signal) error {
	confirmation, err := s.processSignal(ctx, sig)
	if err != nil {
		return err
	}
	s.logger.Info("queued signal resolved",
		"client_msg_id", sig.ClientMsgID,
		"status", confirmation.Status,
		"signal_id", confirmation.SignalID,
	)
	return nil
}

// ReportFailure implements queue.Sink: give-ups are recorded as FAILED
// audit rows, filed as reports, and alerted to administrators.
func (s *Server) ReportFailure(ctx context.Context, reportType string, sig protocol.Signal, detail string) {
	if _, err := s.store.CreateReport(ctx, reportType, detail); err != nil {
		s.logger.Error("creating report", "type", reportType, "error", err)
	}
	failureRecord := store.Signal{
		ClientMsgID: sig.ClientMsgID,
		Action:      sig.Action,
		Symbol:      sig.Symbol,
		Price:       sig.Price,
	}
	if err := s.store.RecordFailure(ctx, failureRecord); err != nil {
		s.logger.Error("recording failure", "client_msg_id", sig.ClientMsgID, "error", err)
	}
	subject, body := notify.FormatReport(reportType, detail)
	if err := s.notifier.Notify(ctx, subject, body); err != nil {
		s.logger.Warn("report notification failed", "error", err)
	}
}
