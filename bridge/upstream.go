// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"

	"github.com/tradewire-foundation/tradewire/lib/netutil"
	"github.com/tradewire-foundation/tradewire/protocol"
	"github.com/tradewire-foundation/tradewire/session"
)

// runUpstream maintains the one authenticated link to the relay:
// dial, authenticate, serve until it drops, back off, repeat. The
// backoff doubles per failed cycle up to the configured maximum and
// resets after a successful authentication.
func (b *Bridge) runUpstream() {
	delay := b.cfg.ReconnectMinDelay
	for b.ctx.Err() == nil {
		sess, err := b.connectUpstream()
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Warn("relay connection failed",
				"relay", b.cfg.RelayAddress,
				"retry_in", delay,
				"error", err,
			)
		} else {
			delay = b.cfg.ReconnectMinDelay
			b.setUpstream(sess)
			b.serveUpstream(sess)
			b.setUpstream(nil)
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Warn("relay connection lost", "retry_in", delay)
		}

		select {
		case <-b.ctx.Done():
			return
		case <-b.clock.After(delay):
		}
		delay *= 2
		if delay > b.cfg.ReconnectMaxDelay {
			delay = b.cfg.ReconnectMaxDelay
		}
	}
}

// connectUpstream dials and authenticates one relay connection.
func (b *Bridge) connectUpstream() (*session.Session, error) {
	conn, err := b.cfg.Dial(b.ctx)
	if err != nil {
		return nil, err
	}
	sess := session.New(session.Config{
		Conn:         conn,
		Clock:        b.clock,
		Logger:       b.logger.With("component", "upstream"),
		MaxPayload:   b.cfg.MaxPayload,
		PingInterval: b.cfg.PingInterval,
		IdleTimeout:  b.cfg.IdleTimeout,
	})
	if err := sess.Authenticate(b.cfg.SecretKey); err != nil {
		sess.Close()
		return nil, err
	}
	b.logger.Info("relay connection established", "relay", b.cfg.RelayAddress)
	return sess, nil
}

// serveUpstream runs one authenticated link: a writer goroutine drains
// the outbox while the session read loop routes confirmations. Returns
// when the link drops. Signals still in the outbox stay queued for the
// next link.
func (b *Bridge) serveUpstream(sess *session.Session) {
	writerStop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-writerStop:
				return
			case sig := <-b.outbox:
				if err := sess.Send(sig); err != nil {
					b.logger.Warn("forwarding signal upstream failed",
						"client_msg_id", sig.ClientMsgID,
						"error", err,
					)
					// The write side is broken; the read loop will
					// notice and trigger a reconnect. The signal's
					// terminal learns the outcome from its own retry.
					return
				}
			}
		}
	}()

	err := sess.Run(b.ctx, func(msg protocol.Message) {
		switch m := msg.(type) {
		case protocol.Confirmation:
			b.deliverConfirmation(m)
		default:
			b.logger.Warn("unexpected message from relay", "type", fmt.Sprintf("%T", msg))
		}
	})
	sess.Close()
	close(writerStop)
	<-writerDone

	if err != nil && !netutil.IsExpectedCloseError(err) && b.ctx.Err() == nil {
		b.logger.Warn("relay session ended", "error", err)
	}
}

// setUpstream publishes (or clears) the live upstream session.
func (b *Bridge) setUpstream(sess *session.Session) {
	b.mu.Lock()
	b.upstream = sess
	b.mu.Unlock()
}
