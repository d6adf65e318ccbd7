// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the Tradewire wire format shared by
// terminals, the local bridge, and the relay server.
//
// Every message on the wire is one frame: a 4-byte big-endian unsigned
// payload length followed by a UTF-8 JSON payload. Frame boundaries
// are the codec's whole job; it never interprets payload content.
//
// Payloads decode into a typed envelope (Auth, Ping, Pong, Signal,
// Confirmation) keyed on the JSON discriminants, so everything above
// this package operates on typed messages, never raw JSON.
package protocol
