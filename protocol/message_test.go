// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseAuth(t *testing.T) {
	msg, err := Parse([]byte(`{"secret_key": "hunter2"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	auth, ok := msg.(Auth)
	if !ok {
		t.Fatalf("Parse returned %T, want Auth", msg)
	}
	if auth.SecretKey != "hunter2" {
		t.Errorf("SecretKey = %q, want %q", auth.SecretKey, "hunter2")
	}
}

func TestParseHeartbeats(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("Parse ping: %v", err)
	}
	if _, ok := msg.(Ping); !ok {
		t.Errorf("Parse ping returned %T, want Ping", msg)
	}

	msg, err = Parse([]byte(`{"type":"pong"}`))
	if err != nil {
		t.Fatalf("Parse pong: %v", err)
	}
	if _, ok := msg.(Pong); !ok {
		t.Errorf("Parse pong returned %T, want Pong", msg)
	}
}

func TestParseSignal(t *testing.T) {
	payload := []byte(`{"type":"signal","client_msg_id":"c1","action":"BUY","symbol":"EURUSD","price":1.125}`)
	msg, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	signal, ok := msg.(Signal)
	if !ok {
		t.Fatalf("Parse returned %T, want Signal", msg)
	}
	if signal.ClientMsgID != "c1" || signal.Action != ActionBuy || signal.Symbol != "EURUSD" {
		t.Errorf("unexpected signal fields: %+v", signal)
	}
	if signal.Price != 1.125 {
		t.Errorf("Price = %v, want 1.125", signal.Price)
	}
}

func TestParseSignalWithoutTypeField(t *testing.T) {
	// Older terminal bindings omit "type" and rely on "action" alone.
	msg, err := Parse([]byte(`{"action":"SELL","symbol":"GBPUSD","price":1.27}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := msg.(Signal); !ok {
		t.Errorf("Parse returned %T, want Signal", msg)
	}
}

func TestParseConfirmation(t *testing.T) {
	payload := []byte(`{"status":"success","message":"ok","signal_id":7,"client_msg_id":"c9"}`)
	msg, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	confirmation, ok := msg.(Confirmation)
	if !ok {
		t.Fatalf("Parse returned %T, want Confirmation", msg)
	}
	if confirmation.SignalID != 7 || confirmation.ClientMsgID != "c9" {
		t.Errorf("unexpected confirmation fields: %+v", confirmation)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"unrelated":"fields"}`),
		[]byte(`[1,2,3]`),
	}
	for _, payload := range cases {
		if _, err := Parse(payload); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", payload, err)
		}
	}
}

func TestSignalValidate(t *testing.T) {
	cases := []struct {
		name   string
		signal Signal
		valid  bool
	}{
		{"buy", Signal{Action: ActionBuy, Symbol: "EURUSD", Price: 1.1}, true},
		{"sell", Signal{Action: ActionSell, Symbol: "EURUSD", Price: 1.1}, true},
		{"close", Signal{Action: ActionClose, Symbol: "EURUSD", Price: 1.1, OpenSignalID: 3}, true},
		{"unknown action", Signal{Action: "HOLD", Symbol: "EURUSD", Price: 1.1}, false},
		{"close without reference", Signal{Action: ActionClose, Symbol: "EURUSD", Price: 1.1}, false},
		{"missing symbol", Signal{Action: ActionBuy, Price: 1.1}, false},
		{"non-positive price", Signal{Action: ActionBuy, Symbol: "EURUSD", Price: 0}, false},
	}
	for _, tc := range cases {
		err := tc.signal.Validate()
		if tc.valid && err != nil {
			t.Errorf("%s: Validate = %v, want nil", tc.name, err)
		}
		if !tc.valid {
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("%s: Validate = %v, want *ValidationError", tc.name, err)
			}
		}
	}
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	original := Signal{
		Type:        "signal",
		ClientMsgID: "rt-1",
		Action:      ActionClose,
		Symbol:      "EURUSD",
		Price:       1.126,
		OpenSignalID: 4,
	}
	if err := WriteMessage(&buffer, original, 0); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	msg, err := ReadMessage(&buffer, 0)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	decoded, ok := msg.(Signal)
	if !ok {
		t.Fatalf("ReadMessage returned %T, want Signal", msg)
	}
	if decoded != original {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}
