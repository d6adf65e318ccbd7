// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the durable record store behind the relay server:
// signals, failure reports, runtime settings, the administrative pause
// flag, and the managed notification channel list. Backed by SQLite
// via lib/sqlitepool.
//
// Accept is idempotent on client_msg_id: a retried accept for a signal
// the store already recorded returns the existing server signal ID
// instead of inserting a duplicate. Transient SQLite contention
// surfaces as *RetryableError so the caller can hand the signal to the
// reliability queue; everything else is permanent.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/lib/sqlitepool"
)

// Signal statuses. PENDING is the in-flight state before the durable
// write lands; terminal states are never deleted.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusFailed    = "FAILED"
	StatusClosed    = "CLOSED"
)

// Report types.
const (
	ReportRetryFailure = "RETRY_FAILURE"
	ReportStaleSignal  = "STALE_SIGNAL"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("store: not found")

// ErrNotClosable reports a CLOSE referencing a signal that is not a
// confirmed open (wrong status or a CLOSE-action row).
var ErrNotClosable = errors.New("store: referenced signal is not a confirmed open")

// RetryableError wraps a transient SQLite failure (busy, locked,
// interrupted). Callers classify with IsRetryable and enqueue the
// signal for retry instead of failing it.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("store: %s: transient: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is (or wraps) a RetryableError.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Signal is one durable trading-signal record.
type Signal struct {
	ID          int64
	ClientMsgID string
	Action      string
	Symbol      string
	Price       float64
	Status      string
	CreatedAt   time.Time

	// Close fields, set when Status is CLOSED.
	ClosePrice float64
	ClosedAt   time.Time
	ProfitLoss float64
}

// Report is a durable record of a signal the relay ultimately gave up
// on, for administrator review.
type Report struct {
	ID        int64
	Type      string
	Details   string
	IsRead    bool
	CreatedAt time.Time
}

// Channel is one managed notification destination.
type Channel struct {
	ID       string
	Name     string
	Endpoint string
}

// DayStats aggregates today's signals for alert texts.
type DayStats struct {
	Total           int
	Buys            int
	Sells           int
	Closed          int
	Wins            int
	Losses          int
	TotalProfitLoss float64
}

// schema is applied to every pooled connection. CREATE IF NOT EXISTS
// keeps it idempotent across connections and restarts.
const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	client_msg_id TEXT UNIQUE,
	action        TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	price         REAL NOT NULL,
	status        TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	close_price   REAL,
	closed_at     INTEGER,
	profit_loss   REAL
);
CREATE INDEX IF NOT EXISTS signals_created_at ON signals(created_at);

CREATE TABLE IF NOT EXISTS reports (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL,
	details    TEXT NOT NULL,
	is_read    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS system_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
INSERT OR IGNORE INTO system_state (key, value, updated_at) VALUES ('paused', '0', 0);

CREATE TABLE IF NOT EXISTS channels (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	endpoint TEXT NOT NULL
);
`

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. Tests use the shared-cache
	// in-memory DSN with PoolSize 1; see sqlitepool.Config.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Clock provides record timestamps and the UTC-day boundary for
	// daily statistics. Required.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Store is the durable record store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (and if necessary creates) the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// classify wraps a SQLite error, marking busy/locked/interrupted as
// retryable. nil passes through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch sqlite.ErrCode(err) {
	case sqlite.ResultBusy, sqlite.ResultLocked, sqlite.ResultInterrupt:
		return &RetryableError{Op: op, Err: err}
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
