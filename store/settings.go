// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SetSetting stores one key/value setting, replacing any previous
// value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
	return classify("set setting", err)
}

// Setting returns the value for key, or ErrNotFound.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	value := ""
	found := false
	err = sqlitex.Execute(conn,
		`SELECT value FROM settings WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				value = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return "", classify("get setting", err)
	}
	if !found {
		return "", fmt.Errorf("store: setting %q: %w", key, ErrNotFound)
	}
	return value, nil
}

// Settings returns all stored settings.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	settings := make(map[string]string)
	err = sqlitex.Execute(conn,
		`SELECT key, value FROM settings`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				settings[stmt.ColumnText(0)] = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		return nil, classify("list settings", err)
	}
	return settings, nil
}

// SetPaused persists the administrative pause flag. The flag survives
// restarts: a paused relay stays paused until explicitly resumed.
func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	value := "0"
	if paused {
		value = "1"
	}
	err = sqlitex.Execute(conn,
		`UPDATE system_state SET value = ?, updated_at = ? WHERE key = 'paused'`,
		&sqlitex.ExecOptions{Args: []any{value, s.clock.Now().Unix()}})
	return classify("set paused", err)
}

// Paused reports the persisted administrative pause flag.
func (s *Store) Paused(ctx context.Context) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	paused := false
	err = sqlitex.Execute(conn,
		`SELECT value FROM system_state WHERE key = 'paused'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				paused = stmt.ColumnText(0) == "1"
				return nil
			},
		})
	if err != nil {
		return false, classify("get paused", err)
	}
	return paused, nil
}

// AddChannel registers (or updates) a managed notification channel.
func (s *Store) AddChannel(ctx context.Context, channel Channel) error {
	if channel.ID == "" {
		return fmt.Errorf("store: add channel: ID is required")
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO channels (id, name, endpoint) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, endpoint = excluded.endpoint`,
		&sqlitex.ExecOptions{Args: []any{channel.ID, channel.Name, channel.Endpoint}})
	return classify("add channel", err)
}

// RemoveChannel deletes a managed channel. ErrNotFound if it does not
// exist.
func (s *Store) RemoveChannel(ctx context.Context, channelID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM channels WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{channelID}})
	if err != nil {
		return classify("remove channel", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("store: channel %q: %w", channelID, ErrNotFound)
	}
	return nil
}

// Channels returns all managed notification channels.
func (s *Store) Channels(ctx context.Context) ([]Channel, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var channels []Channel
	err = sqlitex.Execute(conn,
		`SELECT id, name, endpoint FROM channels ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				channels = append(channels, Channel{
					ID:       stmt.ColumnText(0),
					Name:     stmt.ColumnText(1),
					Endpoint: stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, classify("list channels", err)
	}
	return channels, nil
}
