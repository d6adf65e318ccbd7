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

// CreateReport records a give-up report for administrator review and
// returns its ID.
func (s *Store) CreateReport(ctx context.Context, reportType, details string) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO reports (type, details, created_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{reportType, details, s.clock.Now().Unix()},
		})
	if err != nil {
		return 0, classify("create report", err)
	}
	return conn.LastInsertRowID(), nil
}

// ListReports returns reports newest-first, optionally restricted to
// unread ones.
func (s *Store) ListReports(ctx context.Context, unreadOnly bool) ([]Report, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	query := `SELECT id, type, details, is_read, created_at FROM reports`
	if unreadOnly {
		query += ` WHERE is_read = 0`
	}
	query += ` ORDER BY id DESC`

	var reports []Report
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			reports = append(reports, Report{
				ID:        stmt.ColumnInt64(0),
				Type:      stmt.ColumnText(1),
				Details:   stmt.ColumnText(2),
				IsRead:    stmt.ColumnInt(3) != 0,
				CreatedAt: time.Unix(stmt.ColumnInt64(4), 0).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, classify("list reports", err)
	}
	return reports, nil
}

// MarkReportRead marks one report as read. ErrNotFound if no such
// report exists.
func (s *Store) MarkReportRead(ctx context.Context, reportID int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE reports SET is_read = 1 WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{reportID}})
	if err != nil {
		return classify("mark report read", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: report %d: %w", reportID, ErrNotFound)
	}
	return nil
}
