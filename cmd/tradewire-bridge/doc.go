// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// tradewire-bridge is the terminal-side multiplexer: it accepts plain
// connections from trading terminals on a loopback listener, maintains
// one authenticated link to the relay, and routes confirmations back
// to the terminal that submitted each signal.
//
// Usage:
//
//	tradewire-bridge --config /etc/tradewire/bridge.yaml [--verbose]
package main
