// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tradewire-foundation/tradewire/lib/codec"
	"github.com/tradewire-foundation/tradewire/protocol"
)

// journalEntry is the on-disk form of an Entry: flat fields, unix
// timestamps, deterministic CBOR.
type journalEntry struct {
	ClientMsgID  string  `cbor:"client_msg_id,omitempty"`
	Action       string  `cbor:"action"`
	Symbol       string  `cbor:"symbol"`
	Price        float64 `cbor:"price"`
	OpenSignalID int64   `cbor:"open_signal_id,omitempty"`
	Attempts     int     `cbor:"attempts"`
	EnqueuedAt   int64   `cbor:"enqueued_at"`
	NextRetryAt  int64   `cbor:"next_retry_at"`
}

// loadJournal reads the journal file. A missing file is an empty
// queue.
func loadJournal(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: reading journal %s: %w", path, err)
	}

	var records []journalEntry
	if err := codec.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("queue: decoding journal %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, Entry{
			Signal: protocol.Signal{
				Type:         "signal",
				ClientMsgID:  record.ClientMsgID,
				Action:       record.Action,
				Symbol:       record.Symbol,
				Price:        record.Price,
				OpenSignalID: record.OpenSignalID,
			},
			Attempts:    record.Attempts,
			EnqueuedAt:  time.Unix(record.EnqueuedAt, 0).UTC(),
			NextRetryAt: time.Unix(record.NextRetryAt, 0).UTC(),
		})
	}
	return entries, nil
}

// writeJournal atomically replaces the journal file: the snapshot is
// written to a temp file in the same directory, synced, and renamed
// over the old journal so a crash mid-write never corrupts it.
func writeJournal(path string, entries []Entry) error {
	records := make([]journalEntry, 0, len(entries))
	for _, entry := range entries {
		records = append(records, journalEntry{
			ClientMsgID:  entry.Signal.ClientMsgID,
			Action:       entry.Signal.Action,
			Symbol:       entry.Signal.Symbol,
			Price:        entry.Signal.Price,
			OpenSignalID: entry.Signal.OpenSignalID,
			Attempts:     entry.Attempts,
			EnqueuedAt:   entry.EnqueuedAt.Unix(),
			NextRetryAt:  entry.NextRetryAt.Unix(),
		})
	}
	data, err := codec.Marshal(records)
	if err != nil {
		return fmt.Errorf("queue: encoding journal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("queue: creating journal temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("queue: writing journal temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("queue: syncing journal temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queue: closing journal temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queue: replacing journal: %w", err)
	}
	return nil
}
