// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Signal actions. BUY and SELL are the two sub-kinds of an opening
// signal; CLOSE closes a previously confirmed open.
const (
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
	ActionClose = "CLOSE"
)

// Confirmation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrMalformed reports a payload that is not valid JSON or has no
// recognizable discriminant. Malformed payloads are protocol
// violations: the receiving side closes the connection.
var ErrMalformed = errors.New("protocol: malformed message")

// ValidationError reports a structurally valid message with invalid
// content (unknown action, missing symbol, CLOSE without an
// open_signal_id). Validation failures are answered with an error
// confirmation; the connection stays up.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "protocol: invalid message: " + e.Reason
}

// Message is one decoded wire message. Exactly the five envelope
// variants implement it.
type Message interface {
	isMessage()
}

// Auth is the first frame on every authenticated connection.
type Auth struct {
	SecretKey string `json:"secret_key"`
}

// Ping is the periodic liveness probe.
type Ping struct {
	Type string `json:"type"` // always "ping"
}

// Pong answers a Ping.
type Pong struct {
	Type string `json:"type"` // always "pong"
}

// Signal is one trading event submitted for relay.
type Signal struct {
	Type        string  `json:"type"` // always "signal"
	ClientMsgID string  `json:"client_msg_id,omitempty"`
	Action      string  `json:"action"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`

	// OpenSignalID references the confirmed open signal being closed.
	// Required and non-zero for CLOSE, absent otherwise.
	OpenSignalID int64 `json:"open_signal_id,omitempty"`

	// AllowClose lets a terminal opt in to close handling on brokers
	// that submit closes from a separate account context.
	AllowClose bool `json:"allow_close,omitempty"`
}

// Confirmation is the relay's terminal outcome for one submission.
type Confirmation struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	SignalID    int64  `json:"signal_id,omitempty"`
	ClientMsgID string `json:"client_msg_id,omitempty"`

	// OpenClientMsgID carries the opening signal's client message ID
	// on CLOSE confirmations, so a bridge can route the reply when the
	// close itself was submitted under an ID it never saw.
	OpenClientMsgID string `json:"open_client_msg_id,omitempty"`
}

func (Auth) isMessage()         {}
func (Ping) isMessage()         {}
func (Pong) isMessage()         {}
func (Signal) isMessage()       {}
func (Confirmation) isMessage() {}

// NewPing returns a ready-to-encode Ping.
func NewPing() Ping { return Ping{Type: "ping"} }

// NewPong returns a ready-to-encode Pong.
func NewPong() Pong { return Pong{Type: "pong"} }

// IsClose reports whether the signal is a close action.
func (s Signal) IsClose() bool { return s.Action == ActionClose }

// Validate checks signal content. A nil return means the signal is
// well-formed; otherwise the error is a *ValidationError describing
// the first failed check.
func (s Signal) Validate() error {
	switch s.Action {
	case ActionBuy, ActionSell:
	case ActionClose:
		if s.OpenSignalID <= 0 {
			return &ValidationError{Reason: "open_signal_id is required for CLOSE"}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown action %q", s.Action)}
	}
	if s.Symbol == "" {
		return &ValidationError{Reason: "symbol is required"}
	}
	if s.Price <= 0 {
		return &ValidationError{Reason: "price must be positive"}
	}
	return nil
}

// probe mirrors every discriminant field across the envelope variants
// so one unmarshal classifies the payload.
type probe struct {
	Type      string  `json:"type"`
	Action    string  `json:"action"`
	SecretKey *string `json:"secret_key"`
	Status    string  `json:"status"`
}

// Parse decodes a frame payload into its typed envelope variant.
//
// Invalid JSON and unclassifiable payloads return ErrMalformed.
// Content-level problems (unknown action, bad fields) are NOT detected
// here; callers run Signal.Validate after parsing, so that a malformed
// frame can tear down the connection while an invalid signal only
// earns an error confirmation.
func Parse(payload []byte) (Message, error) {
	var p probe
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case p.SecretKey != nil:
		return Auth{SecretKey: *p.SecretKey}, nil
	case p.Type == "ping":
		return NewPing(), nil
	case p.Type == "pong":
		return NewPong(), nil
	case p.Type == "signal" || p.Action != "":
		var signal Signal
		if err := json.Unmarshal(payload, &signal); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return signal, nil
	case p.Status != "":
		var confirmation Confirmation
		if err := json.Unmarshal(payload, &confirmation); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return confirmation, nil
	default:
		return nil, fmt.Errorf("%w: no recognizable discriminant", ErrMalformed)
	}
}

// WriteMessage JSON-encodes msg and writes it as one frame.
func WriteMessage(w io.Writer, msg Message, maxPayload int) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: encode message: %w", err)
	}
	return WriteFrame(w, payload, maxPayload)
}

// ReadMessage reads one frame and parses it into a typed message.
func ReadMessage(r io.Reader, maxPayload int) (Message, error) {
	payload, err := ReadFrame(r, maxPayload)
	if err != nil {
		return nil, err
	}
	return Parse(payload)
}
