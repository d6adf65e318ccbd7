// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// tradewire-relay is the relay server: it accepts authenticated bridge
// connections, admits trading signals through the policy gate, records
// them durably in SQLite, and alerts administrators.
//
// Usage:
//
//	tradewire-relay --config /etc/tradewire/relay.yaml [--verbose]
package main
