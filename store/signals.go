// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const signalColumns = `id, COALESCE(client_msg_id, ''), action, symbol, price, status,
	created_at, COALESCE(close_price, 0), COALESCE(closed_at, 0), COALESCE(profit_loss, 0)`

func scanSignal(stmt *sqlite.Stmt) Signal {
	signal := Signal{
		ID:          stmt.ColumnInt64(0),
		ClientMsgID: stmt.ColumnText(1),
		Action:      stmt.ColumnText(2),
		Symbol:      stmt.ColumnText(3),
		Price:       stmt.ColumnFloat(4),
		Status:      stmt.ColumnText(5),
		CreatedAt:   time.Unix(stmt.ColumnInt64(6), 0).UTC(),
		ClosePrice:  stmt.ColumnFloat(7),
		ProfitLoss:  stmt.ColumnFloat(9),
	}
	if closedAt := stmt.ColumnInt64(8); closedAt != 0 {
		signal.ClosedAt = time.Unix(closedAt, 0).UTC()
	}
	return signal
}

// Accept durably records an opening signal as CONFIRMED and returns
// its server signal ID.
//
// When sig.ClientMsgID is non-empty and a signal with that ID already
// exists, the existing ID is returned without inserting: a sender
// retrying after a lost confirmation gets the same answer, never a
// duplicate record.
func (s *Store) Accept(ctx context.Context, sig Signal) (signalID int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, classify("accept", err)
	}
	defer endFn(&err)

	if sig.ClientMsgID != "" {
		existing := int64(-1)
		err = sqlitex.Execute(conn,
			`SELECT id FROM signals WHERE client_msg_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{sig.ClientMsgID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					existing = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return 0, classify("accept", err)
		}
		if existing >= 0 {
			s.logger.Debug("duplicate accept",
				"client_msg_id", sig.ClientMsgID,
				"signal_id", existing,
			)
			return existing, nil
		}
	}

	var clientMsgID any
	if sig.ClientMsgID != "" {
		clientMsgID = sig.ClientMsgID
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO signals (client_msg_id, action, symbol, price, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{clientMsgID, sig.Action, sig.Symbol, sig.Price,
				StatusConfirmed, s.clock.Now().Unix()},
		})
	if err != nil {
		return 0, classify("accept", err)
	}
	return conn.LastInsertRowID(), nil
}

// CloseSignal marks the confirmed open signal openID as CLOSED at
// closePrice and returns the updated record, including the realized
// profit or loss (close minus open for BUY, open minus close for
// SELL).
//
// Closing an already-closed signal is idempotent: the stored record is
// returned unchanged. A missing signal is ErrNotFound; a signal in any
// other non-CONFIRMED state is ErrNotClosable.
func (s *Store) CloseSignal(ctx context.Context, openID int64, closePrice float64) (closed Signal, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Signal{}, err
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Signal{}, classify("close", err)
	}
	defer endFn(&err)

	found := false
	err = sqlitex.Execute(conn,
		`SELECT `+signalColumns+` FROM signals WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{openID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				closed = scanSignal(stmt)
				return nil
			},
		})
	if err != nil {
		return Signal{}, classify("close", err)
	}
	if !found {
		return Signal{}, fmt.Errorf("store: close signal %d: %w", openID, ErrNotFound)
	}

	switch closed.Status {
	case StatusClosed:
		return closed, nil
	case StatusConfirmed:
	default:
		return Signal{}, fmt.Errorf("store: close signal %d (status %s): %w",
			openID, closed.Status, ErrNotClosable)
	}

	var profitLoss float64
	switch closed.Action {
	case "BUY":
		profitLoss = closePrice - closed.Price
	case "SELL":
		profitLoss = closed.Price - closePrice
	default:
		return Signal{}, fmt.Errorf("store: close signal %d (action %s): %w",
			openID, closed.Action, ErrNotClosable)
	}

	closedAt := s.clock.Now()
	err = sqlitex.Execute(conn,
		`UPDATE signals
		 SET status = ?, close_price = ?, closed_at = ?, profit_loss = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{StatusClosed, closePrice, closedAt.Unix(), profitLoss, openID},
		})
	if err != nil {
		return Signal{}, classify("close", err)
	}

	closed.Status = StatusClosed
	closed.ClosePrice = closePrice
	closed.ClosedAt = closedAt.UTC().Truncate(time.Second)
	closed.ProfitLoss = profitLoss
	return closed, nil
}

// GetSignal returns the signal with the given server ID, or
// ErrNotFound.
func (s *Store) GetSignal(ctx context.Context, signalID int64) (Signal, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Signal{}, err
	}
	defer s.pool.Put(conn)

	var signal Signal
	found := false
	err = sqlitex.Execute(conn,
		`SELECT `+signalColumns+` FROM signals WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{signalID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				signal = scanSignal(stmt)
				return nil
			},
		})
	if err != nil {
		return Signal{}, classify("get signal", err)
	}
	if !found {
		return Signal{}, fmt.Errorf("store: signal %d: %w", signalID, ErrNotFound)
	}
	return signal, nil
}

// RecordFailure writes a FAILED audit row for a signal the relay gave
// up on. Idempotent on client_msg_id so repeated give-ups for the same
// submission leave one row.
func (s *Store) RecordFailure(ctx context.Context, sig Signal) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	var clientMsgID any
	if sig.ClientMsgID != "" {
		clientMsgID = sig.ClientMsgID
	}
	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO signals (client_msg_id, action, symbol, price, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{clientMsgID, sig.Action, sig.Symbol, sig.Price,
				StatusFailed, s.clock.Now().Unix()},
		})
	return classify("record failure", err)
}

// TodayCount returns the number of signals accepted since the start of
// the current UTC day. FAILED audit rows do not count against the
// daily cap.
func (s *Store) TodayCount(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM signals WHERE created_at >= ? AND status != ?`,
		&sqlitex.ExecOptions{
			Args: []any{startOfUTCDay(s.clock.Now()).Unix(), StatusFailed},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, classify("today count", err)
	}
	return count, nil
}

// TodayStats aggregates the current UTC day's signals for alert and
// summary texts.
func (s *Store) TodayStats(ctx context.Context) (DayStats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return DayStats{}, err
	}
	defer s.pool.Put(conn)

	var stats DayStats
	err = sqlitex.Execute(conn,
		`SELECT action, status, COALESCE(profit_loss, 0)
		 FROM signals WHERE created_at >= ? AND status != ?`,
		&sqlitex.ExecOptions{
			Args: []any{startOfUTCDay(s.clock.Now()).Unix(), StatusFailed},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Total++
				switch stmt.ColumnText(0) {
				case "BUY":
					stats.Buys++
				case "SELL":
					stats.Sells++
				}
				if stmt.ColumnText(1) == StatusClosed {
					stats.Closed++
					profitLoss := stmt.ColumnFloat(2)
					stats.TotalProfitLoss += profitLoss
					switch {
					case profitLoss > 0:
						stats.Wins++
					case profitLoss < 0:
						stats.Losses++
					}
				}
				return nil
			},
		})
	if err != nil {
		return DayStats{}, classify("today stats", err)
	}
	return stats, nil
}

func startOfUTCDay(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
