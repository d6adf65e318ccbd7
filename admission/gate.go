// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package admission decides whether a signal may be durably accepted.
//
// Admit is a pure function over an explicit State snapshot: the caller
// assembles the pause flag, the last-accepted timestamp, and today's
// accepted count (from the store and its own memory) and applies the
// decision. The gate itself holds no state and performs no I/O, which
// is what makes its rate and window behavior testable against a fixed
// clock.
package admission

import (
	"fmt"
	"time"
)

// Deny reasons, stable strings surfaced in error confirmations and
// logs.
const (
	ReasonPaused       = "paused"
	ReasonOutsideHours = "outside-hours"
	ReasonRateLimited  = "rate-limited"
	ReasonDailyCap     = "daily-cap"
)

// Config is the admission policy.
type Config struct {
	// Window restricts acceptance to a time-of-day range (UTC). Nil
	// means no restriction. A window whose End precedes its Start
	// wraps midnight.
	Window *Window

	// MinInterval is the minimum elapsed time between accepted
	// signals. Zero disables rate limiting.
	MinInterval time.Duration

	// DailyCap is the maximum number of signals accepted per UTC day.
	// Zero means unlimited.
	DailyCap int
}

// State is the mutable admission inputs, owned by the caller and
// passed by value so Admit stays pure.
type State struct {
	// Paused is the administrative pause flag.
	Paused bool

	// LastAccepted is when the previous signal was accepted. The zero
	// time means no signal has been accepted yet.
	LastAccepted time.Time

	// AcceptedToday is the number of signals accepted since the start
	// of the current UTC day.
	AcceptedToday int
}

// Decision is the gate's verdict.
type Decision struct {
	Allow  bool
	Reason string // deny reason constant; empty when allowed
	Detail string // human-readable explanation for the sender
}

// allow is the single allowing Decision.
var allow = Decision{Allow: true}

// Admit evaluates the policy checks in order, short-circuiting on the
// first failure: pause, trading window, rate limit, daily cap.
//
// Close signals (closing an already-confirmed open) skip the window,
// rate, and cap checks, since closing a position is never rate-limited,
// but still respect the pause flag.
func Admit(cfg Config, state State, isClose bool, now time.Time) Decision {
	if state.Paused {
		return Decision{Reason: ReasonPaused, Detail: "relay is paused by an administrator"}
	}
	if isClose {
		return allow
	}

	if cfg.Window != nil && !cfg.Window.Contains(now) {
		return Decision{
			Reason: ReasonOutsideHours,
			Detail: fmt.Sprintf("outside trading hours (%s UTC)", cfg.Window),
		}
	}

	if cfg.MinInterval > 0 && !state.LastAccepted.IsZero() {
		elapsed := now.Sub(state.LastAccepted)
		if elapsed < cfg.MinInterval {
			remaining := cfg.MinInterval - elapsed
			return Decision{
				Reason: ReasonRateLimited,
				Detail: fmt.Sprintf("rate limit active, wait %s", remaining.Round(time.Second)),
			}
		}
	}

	if cfg.DailyCap > 0 && state.AcceptedToday >= cfg.DailyCap {
		return Decision{
			Reason: ReasonDailyCap,
			Detail: fmt.Sprintf("daily limit of %d signals reached", cfg.DailyCap),
		}
	}

	return allow
}
