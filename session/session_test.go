// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/lib/testutil"
	"github.com/tradewire-foundation/tradewire/protocol"
)

var sessionEpoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestHandshake(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := New(Config{Conn: clientConn})
	server := New(Config{Conn: serverConn})
	defer client.Close()
	defer server.Close()

	serverResult := make(chan error, 1)
	go func() { serverResult <- server.ExpectAuth("hunter2") }()

	if err := client.Authenticate("hunter2"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := testutil.RequireReceive(t, serverResult, 5*time.Second, "ExpectAuth did not return"); err != nil {
		t.Fatalf("ExpectAuth: %v", err)
	}
}

func TestHandshakeWrongSecret(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := New(Config{Conn: clientConn})
	server := New(Config{Conn: serverConn})
	defer client.Close()
	defer server.Close()

	serverResult := make(chan error, 1)
	go func() { serverResult <- server.ExpectAuth("hunter2") }()

	clientErr := client.Authenticate("wrong")
	if !errors.Is(clientErr, ErrAuthFailed) {
		t.Errorf("Authenticate err = %v, want ErrAuthFailed", clientErr)
	}
	serverErr := testutil.RequireReceive(t, serverResult, 5*time.Second, "ExpectAuth did not return")
	if !errors.Is(serverErr, ErrAuthFailed) {
		t.Errorf("ExpectAuth err = %v, want ErrAuthFailed", serverErr)
	}
}

func TestHandshakeRequiresAuthFirstFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	server := New(Config{Conn: serverConn})
	defer clientConn.Close()
	defer server.Close()

	serverResult := make(chan error, 1)
	go func() { serverResult <- server.ExpectAuth("hunter2") }()

	if err := protocol.WriteMessage(clientConn, protocol.NewPing(), 0); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	reply, err := protocol.ReadMessage(clientConn, 0)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	confirmation, ok := reply.(protocol.Confirmation)
	if !ok || confirmation.Status != protocol.StatusError {
		t.Errorf("reply = %+v, want error confirmation", reply)
	}
	serverErr := testutil.RequireReceive(t, serverResult, 5*time.Second, "ExpectAuth did not return")
	if !errors.Is(serverErr, ErrAuthFailed) {
		t.Errorf("ExpectAuth err = %v, want ErrAuthFailed", serverErr)
	}
}

// runSession starts Run with supervision configured by the caller and
// returns the peer conn plus the Run result channel.
func runSession(t *testing.T, fakeClock *clock.FakeClock, pingInterval, idleTimeout time.Duration, handler func(protocol.Message)) (net.Conn, *Session, chan error, context.CancelFunc) {
	t.Helper()
	sessionConn, peerConn := net.Pipe()
	s := New(Config{
		Conn:         sessionConn,
		Clock:        fakeClock,
		PingInterval: pingInterval,
		IdleTimeout:  idleTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- s.Run(ctx, handler) }()
	t.Cleanup(func() {
		cancel()
		s.Close()
		peerConn.Close()
	})
	return peerConn, s, result, cancel
}

func TestRunAnswersPing(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	handled := make(chan protocol.Message, 1)
	peer, _, _, _ := runSession(t, fakeClock, -1, -1, func(msg protocol.Message) { handled <- msg })

	if err := protocol.WriteMessage(peer, protocol.NewPing(), 0); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	reply, err := protocol.ReadMessage(peer, 0)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if _, ok := reply.(protocol.Pong); !ok {
		t.Errorf("reply = %+v, want Pong", reply)
	}
	select {
	case msg := <-handled:
		t.Errorf("ping reached the handler: %+v", msg)
	default:
	}
}

func TestRunDeliversMessages(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	handled := make(chan protocol.Message, 1)
	peer, _, _, _ := runSession(t, fakeClock, -1, -1, func(msg protocol.Message) { handled <- msg })

	sent := protocol.Signal{Type: "signal", ClientMsgID: "c1", Action: protocol.ActionBuy, Symbol: "EURUSD", Price: 1.1}
	if err := protocol.WriteMessage(peer, sent, 0); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	msg := testutil.RequireReceive(t, handled, 5*time.Second, "signal not delivered")
	if signal, ok := msg.(protocol.Signal); !ok || signal.ClientMsgID != "c1" {
		t.Errorf("handler got %+v", msg)
	}
}

func TestRunSendsPeriodicPings(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	peer, _, _, _ := runSession(t, fakeClock, 30*time.Second, -1, func(protocol.Message) {})

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(30 * time.Second)

	msg, err := protocol.ReadMessage(peer, 0)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if _, ok := msg.(protocol.Ping); !ok {
		t.Errorf("message = %+v, want Ping", msg)
	}
}

func TestRunIdleTimeout(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	_, _, result, _ := runSession(t, fakeClock, -1, 90*time.Second, func(protocol.Message) {})

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(91 * time.Second)

	err := testutil.RequireReceive(t, result, 5*time.Second, "Run did not stop on idle peer")
	if !errors.Is(err, ErrIdleTimeout) {
		t.Errorf("Run err = %v, want ErrIdleTimeout", err)
	}
}

func TestRunActivityDefersIdleTimeout(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	handled := make(chan protocol.Message, 1)
	peer, _, result, _ := runSession(t, fakeClock, -1, 90*time.Second, func(msg protocol.Message) { handled <- msg })

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(60 * time.Second)

	// A frame at t+60 resets the idle clock; the handler receipt
	// guarantees the read loop recorded the activity.
	sent := protocol.Signal{Type: "signal", Action: protocol.ActionSell, Symbol: "GBPUSD", Price: 1.3}
	if err := protocol.WriteMessage(peer, sent, 0); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	testutil.RequireReceive(t, handled, 5*time.Second, "signal not delivered")

	fakeClock.Advance(60 * time.Second)
	select {
	case err := <-result:
		t.Fatalf("Run stopped %v after recent activity", err)
	case <-time.After(50 * time.Millisecond):
	}

	fakeClock.Advance(65 * time.Second)
	err := testutil.RequireReceive(t, result, 5*time.Second, "Run did not stop after the peer went silent")
	if !errors.Is(err, ErrIdleTimeout) {
		t.Errorf("Run err = %v, want ErrIdleTimeout", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	_, _, result, cancel := runSession(t, fakeClock, -1, -1, func(protocol.Message) {})

	cancel()
	err := testutil.RequireReceive(t, result, 5*time.Second, "Run did not stop on cancel")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}

func TestRunIdleTimeoutFiresSoonAfterWindow(t *testing.T) {
	fakeClock := clock.Fake(sessionEpoch)
	_, _, result, _ := runSession(t, fakeClock, -1, 90*time.Second, func(protocol.Message) {})

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(90 * time.Second)
	select {
	case err := <-result:
		t.Fatalf("Run stopped %v before the idle window elapsed", err)
	case <-time.After(50 * time.Millisecond):
	}

	// The supervisor checks several times per window, so one more
	// sixth of the timeout is enough to notice the silent peer.
	fakeClock.Advance(15 * time.Second)
	err := testutil.RequireReceive(t, result, 5*time.Second, "Run did not stop soon after the idle window")
	if !errors.Is(err, ErrIdleTimeout) {
		t.Errorf("Run err = %v, want ErrIdleTimeout", err)
	}
}
