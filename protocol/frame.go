// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPayload is the default upper bound on a frame payload.
// 4 MiB is far beyond any signal or confirmation; a larger declared
// length means a corrupt or hostile stream.
const DefaultMaxPayload = 4 * 1024 * 1024

// frameHeaderLength is the fixed frame header size: a 4-byte
// big-endian unsigned payload length.
const frameHeaderLength = 4

// ErrPayloadTooLarge reports a payload exceeding the configured
// maximum, on either the encode or the decode side. On decode this is
// a protocol violation: the connection must be torn down, not retried.
var ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum frame size")

// ErrEmptyPayload reports a zero-length payload. The protocol has no
// empty messages, so a zero declared length is a violation too.
var ErrEmptyPayload = errors.New("protocol: empty payload")

// WriteFrame writes one length-prefixed frame to w. maxPayload <= 0
// selects DefaultMaxPayload.
//
// The header and payload go out in a single Write call so that
// concurrent writers serialized by a mutex can never interleave frame
// fragments.
func WriteFrame(w io.Writer, payload []byte, maxPayload int) error {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), maxPayload)
	}

	frame := make([]byte, frameHeaderLength+len(payload))
	binary.BigEndian.PutUint32(frame[:frameHeaderLength], uint32(len(payload)))
	copy(frame[frameHeaderLength:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload. maxPayload
// <= 0 selects DefaultMaxPayload.
//
// A declared length of zero or above maxPayload fails immediately
// without reading the payload. Short reads surface as errors (the
// reader accumulates partial reads via io.ReadFull).
func ReadFrame(r io.Reader, maxPayload int) ([]byte, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("protocol: read frame header: %w", err)
	}

	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength == 0 {
		return nil, ErrEmptyPayload
	}
	if payloadLength > uint32(maxPayload) {
		return nil, fmt.Errorf("%w: declared %d > %d", ErrPayloadTooLarge, payloadLength, maxPayload)
	}

	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read frame payload: %w", err)
	}
	return payload, nil
}
