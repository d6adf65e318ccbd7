// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue is the reliability queue: signals whose durable accept
// failed transiently are parked here and retried on a fixed cadence
// until they succeed, exceed the retry budget, or go stale.
//
// The queue re-runs the caller's full accept path on each retry, so a
// late success produces the same side effects (confirmation,
// broadcast) as an immediate one. Give-ups are handed to a Sink with a
// terminal report type; the queue itself never talks to the store or
// the network.
//
// Pending entries are journaled to disk so queued signals survive a
// relay restart.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/protocol"
)

// Report types handed to the Sink on give-up.
const (
	ReportRetryFailure = "RETRY_FAILURE"
	ReportStaleSignal  = "STALE_SIGNAL"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultMaxRetries    = 5
	DefaultRetryDelay    = 10 * time.Second
	DefaultExpiry        = 3 * time.Minute
	DefaultSweepInterval = time.Second
)

// AcceptFunc retries the durable accept of one signal. A nil return
// removes the entry. A *protocol.ValidationError return drops the
// entry without a report (the signal can never succeed and its sender
// already got an error confirmation). Any other error counts as a
// failed attempt and the entry is rescheduled.
type AcceptFunc func(ctx context.Context, sig protocol.Signal) error

// Sink receives terminal give-up outcomes: reportType is
// ReportRetryFailure or ReportStaleSignal.
type Sink interface {
	ReportFailure(ctx context.Context, reportType string, sig protocol.Signal, detail string)
}

// Entry is one queued signal awaiting retry.
type Entry struct {
	Signal      protocol.Signal
	Attempts    int
	EnqueuedAt  time.Time
	NextRetryAt time.Time
}

// Config holds the parameters for a Queue.
type Config struct {
	// MaxRetries is the number of retry attempts per signal before the
	// queue gives up.
	MaxRetries int

	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration

	// Expiry is the maximum age of a queued signal. A stale trading
	// signal is worse than a dropped one, so age wins over remaining
	// attempts.
	Expiry time.Duration

	// SweepInterval is how often due entries are checked.
	SweepInterval time.Duration

	// JournalPath is the on-disk journal file. Empty disables
	// journaling (tests).
	JournalPath string

	Clock  clock.Clock
	Logger *slog.Logger

	// Accept retries the durable accept. Required.
	Accept AcceptFunc

	// Sink receives give-up reports. Required.
	Sink Sink
}

// Queue is the reliability queue. Safe for concurrent use.
type Queue struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	entries []Entry
}

// New creates a queue and, when a journal path is configured, restores
// any entries a previous process left behind.
func New(cfg Config) (*Queue, error) {
	if cfg.Accept == nil {
		return nil, fmt.Errorf("queue: Accept is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("queue: Sink is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("queue: Clock is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	q := &Queue{cfg: cfg, logger: logger}
	if cfg.JournalPath != "" {
		entries, err := loadJournal(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		q.entries = entries
		if len(entries) > 0 {
			logger.Info("restored queued signals from journal",
				"path", cfg.JournalPath,
				"count", len(entries),
			)
		}
	}
	return q, nil
}

// Enqueue parks a signal whose initial accept failed transiently.
func (q *Queue) Enqueue(sig protocol.Signal) {
	now := q.cfg.Clock.Now()
	q.mu.Lock()
	q.entries = append(q.entries, Entry{
		Signal:      sig,
		Attempts:    0,
		EnqueuedAt:  now,
		NextRetryAt: now.Add(q.cfg.RetryDelay),
	})
	q.persistLocked()
	q.mu.Unlock()

	q.logger.Info("signal queued for retry",
		"client_msg_id", sig.ClientMsgID,
		"action", sig.Action,
		"symbol", sig.Symbol,
	)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Run sweeps the queue on the configured interval until ctx is
// cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := q.cfg.Clock.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		}
	}
}

// sweep retries every due entry, oldest deadline first.
func (q *Queue) sweep(ctx context.Context) {
	now := q.cfg.Clock.Now()

	q.mu.Lock()
	var due []Entry
	var waiting []Entry
	for _, entry := range q.entries {
		if !entry.NextRetryAt.After(now) {
			due = append(due, entry)
		} else {
			waiting = append(waiting, entry)
		}
	}
	if len(due) == 0 {
		q.mu.Unlock()
		return
	}
	q.entries = waiting
	q.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(due[j].NextRetryAt)
	})

	var rescheduled []Entry
	for _, entry := range due {
		if keep, updated := q.attempt(ctx, entry, now); keep {
			rescheduled = append(rescheduled, updated)
		}
	}

	q.mu.Lock()
	q.entries = append(q.entries, rescheduled...)
	q.persistLocked()
	q.mu.Unlock()
}

// attempt runs one retry. Returns the rescheduled entry when the
// signal should stay queued.
func (q *Queue) attempt(ctx context.Context, entry Entry, now time.Time) (keep bool, updated Entry) {
	// Staleness wins over remaining attempts.
	if age := now.Sub(entry.EnqueuedAt); age > q.cfg.Expiry {
		detail := fmt.Sprintf("signal %s %s expired after %s in the retry queue",
			entry.Signal.Action, entry.Signal.Symbol, age.Round(time.Second))
		q.logger.Warn("queued signal went stale",
			"client_msg_id", entry.Signal.ClientMsgID,
			"age", age,
		)
		q.cfg.Sink.ReportFailure(ctx, ReportStaleSignal, entry.Signal, detail)
		return false, Entry{}
	}

	err := q.cfg.Accept(ctx, entry.Signal)
	if err == nil {
		q.logger.Info("queued signal accepted on retry",
			"client_msg_id", entry.Signal.ClientMsgID,
			"attempts", entry.Attempts+1,
		)
		return false, Entry{}
	}

	var validationErr *protocol.ValidationError
	if errors.As(err, &validationErr) {
		q.logger.Warn("dropping invalid queued signal",
			"client_msg_id", entry.Signal.ClientMsgID,
			"reason", validationErr.Reason,
		)
		return false, Entry{}
	}

	entry.Attempts++
	if entry.Attempts >= q.cfg.MaxRetries {
		detail := fmt.Sprintf("signal %s %s failed after %d attempts: %v",
			entry.Signal.Action, entry.Signal.Symbol, entry.Attempts, err)
		q.logger.Error("giving up on queued signal",
			"client_msg_id", entry.Signal.ClientMsgID,
			"attempts", entry.Attempts,
			"error", err,
		)
		q.cfg.Sink.ReportFailure(ctx, ReportRetryFailure, entry.Signal, detail)
		return false, Entry{}
	}

	entry.NextRetryAt = now.Add(q.cfg.RetryDelay)
	q.logger.Debug("queued signal retry failed",
		"client_msg_id", entry.Signal.ClientMsgID,
		"attempts", entry.Attempts,
		"error", err,
	)
	return true, entry
}

// persistLocked rewrites the journal. Caller holds q.mu.
func (q *Queue) persistLocked() {
	if q.cfg.JournalPath == "" {
		return
	}
	if err := writeJournal(q.cfg.JournalPath, q.entries); err != nil {
		// Journal loss degrades restart recovery, not live operation.
		q.logger.Error("writing queue journal", "error", err)
	}
}
