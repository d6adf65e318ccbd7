// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration files for the relay
// server and the local bridge. Unknown keys are rejected so a typo'd
// option fails at startup instead of silently using a default.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradewire-foundation/tradewire/admission"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "3m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TLSConfig enables TLS on the relay's listener.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether a certificate is configured.
func (c TLSConfig) Enabled() bool { return c.CertFile != "" || c.KeyFile != "" }

// ClientTLSConfig enables TLS on the bridge's upstream connection.
type ClientTLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CAFile is an optional PEM bundle of additional trusted roots for
	// relays with private certificates.
	CAFile string `yaml:"ca_file"`
}

// AdmissionConfig is the relay's signal admission policy.
type AdmissionConfig struct {
	// TradingHours restricts acceptance to "HH:MM-HH:MM" (UTC). Empty
	// means no restriction.
	TradingHours string `yaml:"trading_hours"`

	// MinInterval is the minimum gap between accepted signals. Zero
	// disables rate limiting.
	MinInterval Duration `yaml:"min_interval"`

	// DailyCap is the maximum signals accepted per UTC day. Zero means
	// unlimited.
	DailyCap int `yaml:"daily_cap"`
}

// QueueConfig tunes the reliability queue. Zero fields use the queue
// package defaults.
type QueueConfig struct {
	MaxRetries    int      `yaml:"max_retries"`
	RetryDelay    Duration `yaml:"retry_delay"`
	Expiry        Duration `yaml:"expiry"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// HeartbeatConfig tunes connection liveness.
type HeartbeatConfig struct {
	// Interval is the gap between pings. Zero uses the session default.
	Interval Duration `yaml:"interval"`

	// Timeout is how long a connection may stay silent before it is
	// declared dead. Zero uses the session default.
	Timeout Duration `yaml:"timeout"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	// Listen is the TCP listen address. Defaults to ":7900".
	Listen string `yaml:"listen"`

	// SecretKey authenticates every inbound connection. Required.
	SecretKey string `yaml:"secret_key"`

	// DatabasePath is the SQLite signal store. Required.
	DatabasePath string `yaml:"database_path"`

	// JournalPath is the reliability queue journal. Empty disables
	// journaling.
	JournalPath string `yaml:"journal_path"`

	// MaxPayloadBytes caps frame payloads. Zero uses the protocol
	// default.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// Workers is the size of the signal-processing worker pool.
	// Defaults to 4.
	Workers int `yaml:"workers"`

	// Webhooks are administrator alert endpoints, in addition to any
	// channels managed in the store.
	Webhooks []string `yaml:"webhooks"`

	TLS       TLSConfig       `yaml:"tls"`
	Admission AdmissionConfig `yaml:"admission"`
	Queue     QueueConfig     `yaml:"queue"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// BridgeConfig configures the local bridge.
type BridgeConfig struct {
	// Listen is the local listener for terminals. Loopback only: the
	// bridge trusts local connections and holds the secret itself.
	// Defaults to "127.0.0.1:7901".
	Listen string `yaml:"listen"`

	// RelayAddress is the upstream relay (host:port). Required.
	RelayAddress string `yaml:"relay_address"`

	// SecretKey authenticates the bridge to the relay. Required.
	SecretKey string `yaml:"secret_key"`

	// MaxPayloadBytes caps frame payloads. Zero uses the protocol
	// default.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// ReconnectMinDelay and ReconnectMaxDelay bound the exponential
	// backoff between upstream connection attempts. Defaults: 1s and
	// 64s.
	ReconnectMinDelay Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay Duration `yaml:"reconnect_max_delay"`

	// OutboxSize is how many outbound frames the bridge buffers while
	// the upstream link is congested. Defaults to 256.
	OutboxSize int `yaml:"outbox_size"`

	TLS       ClientTLSConfig `yaml:"tls"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// LoadRelay reads, validates, and defaults a relay configuration.
func LoadRelay(path string) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("config: %s: secret_key is required", path)
	}
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("config: %s: database_path is required", path)
	}
	if cfg.Admission.TradingHours != "" {
		// Fail at startup, not on the first signal.
		if err := validateWindow(cfg.Admission.TradingHours); err != nil {
			return nil, fmt.Errorf("config: %s: trading_hours: %w", path, err)
		}
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return nil, fmt.Errorf("config: %s: tls requires both cert_file and key_file", path)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":7900"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &cfg, nil
}

// LoadBridge reads, validates, and defaults a bridge configuration.
func LoadBridge(path string) (*BridgeConfig, error) {
	var cfg BridgeConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.RelayAddress == "" {
		return nil, fmt.Errorf("config: %s: relay_address is required", path)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("config: %s: secret_key is required", path)
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:7901"
	}
	if cfg.ReconnectMinDelay <= 0 {
		cfg.ReconnectMinDelay = Duration(time.Second)
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = Duration(64 * time.Second)
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	return &cfg, nil
}

func validateWindow(value string) error {
	_, err := admission.ParseWindow(value)
	return err
}

func loadYAML(path string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}
