// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tradewire-foundation/tradewire/bridge"
	"github.com/tradewire-foundation/tradewire/config"
	"github.com/tradewire-foundation/tradewire/lib/clock"
	"github.com/tradewire-foundation/tradewire/lib/process"
	"github.com/tradewire-foundation/tradewire/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	configPath := pflag.String("config", "", "path to the bridge configuration file")
	verbose := pflag.Bool("verbose", false, "enable debug logging")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		version.Print("tradewire-bridge")
		return nil
	}
	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadBridge(*configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	bridgeCfg := bridge.Config{
		Listen:            cfg.Listen,
		RelayAddress:      cfg.RelayAddress,
		SecretKey:         cfg.SecretKey,
		MaxPayload:        cfg.MaxPayloadBytes,
		ReconnectMinDelay: cfg.ReconnectMinDelay.Std(),
		ReconnectMaxDelay: cfg.ReconnectMaxDelay.Std(),
		OutboxSize:        cfg.OutboxSize,
		PingInterval:      cfg.Heartbeat.Interval.Std(),
		IdleTimeout:       cfg.Heartbeat.Timeout.Std(),
		Clock:             clock.Real(),
		Logger:            logger,
	}
	if cfg.TLS.Enabled {
		dial, err := tlsDialer(cfg)
		if err != nil {
			return err
		}
		bridgeCfg.Dial = dial
	}

	b, err := bridge.New(bridgeCfg)
	if err != nil {
		return err
	}
	if err := b.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	b.Stop()
	return nil
}

// tlsDialer builds the upstream dial function for a TLS relay,
// optionally extending the system roots with a private CA bundle.
func tlsDialer(cfg *config.BridgeConfig) (func(ctx context.Context) (net.Conn, error), error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLS.CAFile != "" {
		pem, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		roots, err := x509.SystemCertPool()
		if err != nil {
			roots = x509.NewCertPool()
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLS.CAFile)
		}
		tlsConfig.RootCAs = roots
	}

	address := cfg.RelayAddress
	dialer := &tls.Dialer{Config: tlsConfig}
	return func(ctx context.Context) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", address)
	}, nil
}
