// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers administrator alerts: accepted signals,
// realized closes, and give-up reports. Delivery is webhook-based and
// best effort; a failed notification is logged by the caller and never
// blocks the signal path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Discard returns a Notifier that drops every alert. Used when no
// channels are configured.
func Discard() Notifier { return discard{} }

type discard struct{}

func (discard) Notify(context.Context, string, string) error { return nil }

// Multi fans one alert out to several notifiers. Every notifier is
// attempted; errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Webhook posts alerts as JSON to a single HTTP endpoint.
type Webhook struct {
	endpoint string
	client   *http.Client
}

// NewWebhook creates a webhook notifier for endpoint. A nil client
// gets a 10 second timeout default.
func NewWebhook(endpoint string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{endpoint: endpoint, client: client}
}

// webhookPayload is the posted document.
type webhookPayload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Notify posts the alert. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(webhookPayload{Title: subject, Text: body})
	if err != nil {
		return fmt.Errorf("notify: encoding alert: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: building request for %s: %w", w.endpoint, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := w.client.Do(request)
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", w.endpoint, err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
		response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("notify: %s returned %s", w.endpoint, response.Status)
	}
	return nil
}
