// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tradewire-foundation/tradewire/store"
)

func TestWebhookPostsAlert(t *testing.T) {
	received := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if contentType := r.Header.Get("Content-Type"); contentType != "application/json" {
			t.Errorf("Content-Type = %q", contentType)
		}
		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		received <- payload
	}))
	defer server.Close()

	notifier := NewWebhook(server.URL, server.Client())
	if err := notifier.Notify(context.Background(), "Signal #1: BUY EURUSD", "details"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	payload := <-received
	if payload.Title != "Signal #1: BUY EURUSD" || payload.Text != "details" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebhookNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhook(server.URL, server.Client())
	if err := notifier.Notify(context.Background(), "subject", "body"); err == nil {
		t.Fatalf("Notify succeeded against a 500 endpoint")
	}
}

func TestMultiAttemptsAllNotifiers(t *testing.T) {
	good := make(chan webhookPayload, 1)
	goodServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		json.NewDecoder(r.Body).Decode(&payload)
		good <- payload
	}))
	defer goodServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer badServer.Close()

	// The failing endpoint must not prevent delivery to the healthy one.
	multi := Multi{
		NewWebhook(badServer.URL, badServer.Client()),
		NewWebhook(goodServer.URL, goodServer.Client()),
	}
	err := multi.Notify(context.Background(), "subject", "body")
	if err == nil {
		t.Errorf("Multi.Notify hid the failing endpoint")
	}
	select {
	case payload := <-good:
		if payload.Title != "subject" {
			t.Errorf("payload = %+v", payload)
		}
	default:
		t.Errorf("healthy endpoint was not notified")
	}
}

func TestDiscard(t *testing.T) {
	if err := Discard().Notify(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("Discard.Notify: %v", err)
	}
}

func TestFormatOpened(t *testing.T) {
	subject, body := FormatOpened(
		store.Signal{ID: 3, Action: "BUY", Symbol: "EURUSD", Price: 1.105},
		store.DayStats{Total: 4, Buys: 3, Sells: 1},
	)
	if !strings.Contains(subject, "#3") || !strings.Contains(subject, "BUY EURUSD") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "1.10500") || !strings.Contains(body, "4 signals") {
		t.Errorf("body = %q", body)
	}
}

func TestFormatClosed(t *testing.T) {
	subject, body := FormatClosed(
		store.Signal{ID: 5, Action: "SELL", Symbol: "GBPUSD", Price: 1.30, ClosePrice: 1.27, ProfitLoss: 0.03},
		store.DayStats{Total: 2, Sells: 2, Closed: 1, Wins: 1, TotalProfitLoss: 0.03},
	)
	if !strings.Contains(subject, "profit") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "+0.03000") || !strings.Contains(body, "1W/0L") {
		t.Errorf("body = %q", body)
	}

	subject, _ = FormatClosed(store.Signal{ID: 6, Action: "BUY", Symbol: "EURUSD", ProfitLoss: -0.01}, store.DayStats{})
	if !strings.Contains(subject, "loss") {
		t.Errorf("loss subject = %q", subject)
	}
}
