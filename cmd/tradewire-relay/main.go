// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/tradewire-foundation/tradewire/admission"
	"github.com/tradewire-foundation/tradewire/config"
	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/lib/process"
	"github.com/tradewire-foundation/tradewire/lib/version"
	"github.com/tradewire-foundation/tradewire/notify"
	"github.com/tradewire-foundation/tradewire/queue"
	"github.com/tradewire-foundation/tradewire/relay"
	"github.com/tradewire-foundation/tradewire/store"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	configPath := pflag.String("config", "", "path to the relay configuration file")
	verbose := pflag.Bool("verbose", false, "enable debug logging")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		version.Print("tradewire-relay")
		return nil
	}
	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadRelay(*configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(store.Config{
		Path:   cfg.DatabasePath,
		Clock:  clock.Real(),
		Logger: logger.With("component", "store"),
	})
	if err != nil {
		return err
	}
	defer st.Close()

	admissionCfg, err := buildAdmission(cfg, st, logger)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg, st, logger)
	if err != nil {
		return err
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled() {
		certificate, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("loading TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{certificate},
			MinVersion:   tls.VersionTLS12,
		}
	}

	server, err := relay.New(relay.Config{
		Listen:     cfg.Listen,
		SecretKey:  cfg.SecretKey,
		MaxPayload: cfg.MaxPayloadBytes,
		Workers:    cfg.Workers,
		TLS:        tlsConfig,
		Admission:  admissionCfg,
		Queue: queue.Config{
			MaxRetries:    cfg.Queue.MaxRetries,
			RetryDelay:    cfg.Queue.RetryDelay.Std(),
			Expiry:        cfg.Queue.Expiry.Std(),
			SweepInterval: cfg.Queue.SweepInterval.Std(),
			JournalPath:   cfg.JournalPath,
		},
		IdleTimeout: cfg.Heartbeat.Timeout.Std(),
		Clock:       clock.Real(),
		Logger:      logger,
		Store:       st,
		Notifier:    notifier,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	server.Stop()
	return nil
}

// buildAdmission assembles the admission policy: the config file sets
// the baseline, and settings an administrator stored at runtime
// override it, so a live policy change survives a restart without a
// config edit.
func buildAdmission(cfg *config.RelayConfig, st *store.Store, logger *slog.Logger) (admission.Config, error) {
	admissionCfg := admission.Config{
		MinInterval: cfg.Admission.MinInterval.Std(),
		DailyCap:    cfg.Admission.DailyCap,
	}
	tradingHours := cfg.Admission.TradingHours

	settings, err := st.Settings(context.Background())
	if err != nil {
		return admission.Config{}, err
	}
	if value, ok := settings["trading_hours"]; ok {
		tradingHours = value
		logger.Info("admission override from store", "trading_hours", value)
	}
	if value, ok := settings["min_interval"]; ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return admission.Config{}, fmt.Errorf("stored min_interval %q: %w", value, err)
		}
		admissionCfg.MinInterval = interval
		logger.Info("admission override from store", "min_interval", interval)
	}
	if value, ok := settings["daily_cap"]; ok {
		dailyCap, err := strconv.Atoi(value)
		if err != nil {
			return admission.Config{}, fmt.Errorf("stored daily_cap %q: %w", value, err)
		}
		admissionCfg.DailyCap = dailyCap
		logger.Info("admission override from store", "daily_cap", dailyCap)
	}

	if tradingHours != "" {
		window, err := admission.ParseWindow(tradingHours)
		if err != nil {
			return admission.Config{}, err
		}
		admissionCfg.Window = &window
	}
	return admissionCfg, nil
}

// buildNotifier combines the config file's webhook endpoints with the
// channels managed in the store.
func buildNotifier(cfg *config.RelayConfig, st *store.Store, logger *slog.Logger) (notify.Notifier, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	var notifiers notify.Multi
	for _, endpoint := range cfg.Webhooks {
		notifiers = append(notifiers, notify.NewWebhook(endpoint, client))
	}

	channels, err := st.Channels(context.Background())
	if err != nil {
		return nil, err
	}
	for _, channel := range channels {
		logger.Info("notification channel enabled", "id", channel.ID, "name", channel.Name)
		notifiers = append(notifiers, notify.NewWebhook(channel.Endpoint, client))
	}

	if len(notifiers) == 0 {
		return notify.Discard(), nil
	}
	return notifiers, nil
}
