// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tradewire-foundation/tradewire/lib/clock"
)

var testEpoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(testEpoch)
	s, err := Open(Config{
		Path:     "file::memory:?mode=memory&cache=shared",
		PoolSize: 1,
		Clock:    fakeClock,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s, fakeClock
}

func approximately(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestAcceptAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Accept(ctx, Signal{
		ClientMsgID: "c1",
		Action:      "BUY",
		Symbol:      "EURUSD",
		Price:       1.105,
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	signal, err := s.GetSignal(ctx, id)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if signal.ClientMsgID != "c1" || signal.Action != "BUY" || signal.Symbol != "EURUSD" {
		t.Errorf("unexpected signal: %+v", signal)
	}
	if signal.Status != StatusConfirmed {
		t.Errorf("Status = %q, want %q", signal.Status, StatusConfirmed)
	}
	if !signal.CreatedAt.Equal(testEpoch) {
		t.Errorf("CreatedAt = %v, want %v", signal.CreatedAt, testEpoch)
	}

	if _, err := s.GetSignal(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSignal(99) err = %v, want ErrNotFound", err)
	}
}

func TestAcceptIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	signal := Signal{ClientMsgID: "dup", Action: "BUY", Symbol: "EURUSD", Price: 1.1}
	first, err := s.Accept(ctx, signal)
	if err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	second, err := s.Accept(ctx, signal)
	if err != nil {
		t.Fatalf("second Accept: %v", err)
	}
	if first != second {
		t.Errorf("retried accept got id %d, want %d", second, first)
	}

	count, err := s.TodayCount(ctx)
	if err != nil {
		t.Fatalf("TodayCount: %v", err)
	}
	if count != 1 {
		t.Errorf("TodayCount = %d, want 1", count)
	}
}

func TestAcceptWithoutClientMsgID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Senders without dedup IDs still get distinct records.
	signal := Signal{Action: "SELL", Symbol: "GBPUSD", Price: 1.27}
	first, err := s.Accept(ctx, signal)
	if err != nil {
		t.Fatalf("first Accept: %v", err)
	}
	second, err := s.Accept(ctx, signal)
	if err != nil {
		t.Fatalf("second Accept: %v", err)
	}
	if first == second {
		t.Errorf("accepts without client_msg_id collided on id %d", first)
	}
}

func TestCloseSignalBuyProfit(t *testing.T) {
	s, fakeClock := newTestStore(t)
	ctx := context.Background()

	id, err := s.Accept(ctx, Signal{ClientMsgID: "open-1", Action: "BUY", Symbol: "EURUSD", Price: 1.10})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	fakeClock.Advance(time.Hour)
	closed, err := s.CloseSignal(ctx, id, 1.15)
	if err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Errorf("Status = %q, want %q", closed.Status, StatusClosed)
	}
	if !approximately(closed.ProfitLoss, 0.05) {
		t.Errorf("ProfitLoss = %v, want 0.05", closed.ProfitLoss)
	}
	if closed.ClientMsgID != "open-1" {
		t.Errorf("ClientMsgID = %q, want open-1", closed.ClientMsgID)
	}
	if !closed.ClosedAt.Equal(testEpoch.Add(time.Hour)) {
		t.Errorf("ClosedAt = %v", closed.ClosedAt)
	}

	// Closing again is idempotent and ignores the new price.
	again, err := s.CloseSignal(ctx, id, 2.0)
	if err != nil {
		t.Fatalf("second CloseSignal: %v", err)
	}
	if !approximately(again.ClosePrice, 1.15) || !approximately(again.ProfitLoss, 0.05) {
		t.Errorf("idempotent close changed record: %+v", again)
	}
}

func TestCloseSignalSellDirection(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Accept(ctx, Signal{Action: "SELL", Symbol: "GBPUSD", Price: 1.30})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	closed, err := s.CloseSignal(ctx, id, 1.27)
	if err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}
	// SELL profits when price falls: open minus close.
	if !approximately(closed.ProfitLoss, 0.03) {
		t.Errorf("ProfitLoss = %v, want 0.03", closed.ProfitLoss)
	}
}

func TestCloseSignalErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CloseSignal(ctx, 42, 1.0); !errors.Is(err, ErrNotFound) {
		t.Errorf("close missing: err = %v, want ErrNotFound", err)
	}

	// A FAILED audit row is not a closable open.
	if err := s.RecordFailure(ctx, Signal{ClientMsgID: "f1", Action: "BUY", Symbol: "EURUSD", Price: 1.1}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if _, err := s.CloseSignal(ctx, 1, 1.2); !errors.Is(err, ErrNotClosable) {
		t.Errorf("close failed row: err = %v, want ErrNotClosable", err)
	}
}

func TestTodayCountAndStats(t *testing.T) {
	s, fakeClock := newTestStore(t)
	ctx := context.Background()

	buy1, _ := s.Accept(ctx, Signal{ClientMsgID: "b1", Action: "BUY", Symbol: "EURUSD", Price: 1.10})
	buy2, _ := s.Accept(ctx, Signal{ClientMsgID: "b2", Action: "BUY", Symbol: "EURUSD", Price: 1.20})
	if _, err := s.Accept(ctx, Signal{ClientMsgID: "s1", Action: "SELL", Symbol: "GBPUSD", Price: 1.30}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := s.CloseSignal(ctx, buy1, 1.15); err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}
	if _, err := s.CloseSignal(ctx, buy2, 1.18); err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}

	// Failed rows are audit only.
	if err := s.RecordFailure(ctx, Signal{ClientMsgID: "f1", Action: "BUY", Symbol: "EURUSD", Price: 1.0}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	stats, err := s.TodayStats(ctx)
	if err != nil {
		t.Fatalf("TodayStats: %v", err)
	}
	want := DayStats{Total: 3, Buys: 2, Sells: 1, Closed: 2, Wins: 1, Losses: 1}
	if stats.Total != want.Total || stats.Buys != want.Buys || stats.Sells != want.Sells ||
		stats.Closed != want.Closed || stats.Wins != want.Wins || stats.Losses != want.Losses {
		t.Errorf("TodayStats = %+v, want %+v", stats, want)
	}
	if !approximately(stats.TotalProfitLoss, 0.05-0.02) {
		t.Errorf("TotalProfitLoss = %v, want 0.03", stats.TotalProfitLoss)
	}

	// The day rolls over at UTC midnight.
	fakeClock.Advance(24 * time.Hour)
	count, err := s.TodayCount(ctx)
	if err != nil {
		t.Fatalf("TodayCount: %v", err)
	}
	if count != 0 {
		t.Errorf("TodayCount after day rollover = %d, want 0", count)
	}
}

func TestReports(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateReport(ctx, ReportRetryFailure, "signal c1 failed after 5 attempts")
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	unread, err := s.ListReports(ctx, true)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != id || unread[0].Type != ReportRetryFailure {
		t.Fatalf("unread = %+v", unread)
	}
	if unread[0].IsRead {
		t.Errorf("new report already read")
	}

	if err := s.MarkReportRead(ctx, id); err != nil {
		t.Fatalf("MarkReportRead: %v", err)
	}
	unread, err = s.ListReports(ctx, true)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("unread after mark = %+v", unread)
	}

	all, err := s.ListReports(ctx, false)
	if err != nil {
		t.Fatalf("ListReports(all): %v", err)
	}
	if len(all) != 1 || !all[0].IsRead {
		t.Errorf("all = %+v", all)
	}

	if err := s.MarkReportRead(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("mark missing: err = %v, want ErrNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Setting(ctx, "trading_hours"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing setting: err = %v, want ErrNotFound", err)
	}

	if err := s.SetSetting(ctx, "trading_hours", "08:00-17:00"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "trading_hours", "07:00-21:00"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}

	value, err := s.Setting(ctx, "trading_hours")
	if err != nil {
		t.Fatalf("Setting: %v", err)
	}
	if value != "07:00-21:00" {
		t.Errorf("value = %q, want overwritten value", value)
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if len(settings) != 1 || settings["trading_hours"] != "07:00-21:00" {
		t.Errorf("settings = %v", settings)
	}
}

func TestPauseFlag(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	paused, err := s.Paused(ctx)
	if err != nil {
		t.Fatalf("Paused: %v", err)
	}
	if paused {
		t.Fatalf("fresh store is paused")
	}

	if err := s.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	paused, err = s.Paused(ctx)
	if err != nil {
		t.Fatalf("Paused: %v", err)
	}
	if !paused {
		t.Errorf("pause flag did not persist")
	}
}

func TestChannels(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.AddChannel(ctx, Channel{ID: "ops", Name: "Operations", Endpoint: "https://hooks.example/ops"}); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	// Re-adding updates in place.
	if err := s.AddChannel(ctx, Channel{ID: "ops", Name: "Ops", Endpoint: "https://hooks.example/ops2"}); err != nil {
		t.Fatalf("AddChannel update: %v", err)
	}

	channels, err := s.Channels(ctx)
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "Ops" || channels[0].Endpoint != "https://hooks.example/ops2" {
		t.Errorf("channels = %+v", channels)
	}

	if err := s.RemoveChannel(ctx, "ops"); err != nil {
		t.Fatalf("RemoveChannel: %v", err)
	}
	if err := s.RemoveChannel(ctx, "ops"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove missing: err = %v, want ErrNotFound", err)
	}

	if err := s.AddChannel(ctx, Channel{Name: "no id"}); err == nil {
		t.Errorf("AddChannel without ID succeeded")
	}
}
