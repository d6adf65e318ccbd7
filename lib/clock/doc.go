// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the relay's scheduling paths: retry
// sweeps, heartbeat intervals, supervision windows, and reconnect
// backoff. Production code injects Real(); tests inject Fake() and
// drive it with Advance, which makes the reliability queue's expiry
// and backoff behavior fully deterministic under test.
//
// Any production function that would otherwise call time.Now,
// time.After, or time.NewTicker takes a Clock instead.
package clock
