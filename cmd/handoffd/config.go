package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// config holds the daemon's runtime settings.
type config struct {
	Addr                string        // HTTP listen address
	NodeID              string        // This node's cluster identity
	LogLevel            string        // zerolog level name
	MaxConcurrency      int           // Initial handoff session limit
	BatchSize           int           // Entries per outbound batch
	ReceiverIdleTimeout time.Duration // Inbound stream idle bound

	ReceiverTLSEnabled  bool
	ReceiverTLSCertFile string
	ReceiverTLSKeyFile  string
	ReceiverTLSCAFile   string
}

// defaultConfig returns the settings used when no config file is given.
// The listen address can still be overridden with HANDOFFD_ADDR.
func defaultConfig() config {
	return config{
		Addr:           getenv("HANDOFFD_ADDR", ":8080"),
		NodeID:         getenv("HANDOFFD_NODE_ID", "node-1"),
		LogLevel:       "info",
		MaxConcurrency: 1,
		BatchSize:      128,
	}
}

// fileConfig maps handoffd config.toml keys onto runtime settings.
type fileConfig struct {
	Addr                string `toml:"addr"`
	NodeID              string `toml:"node_id"`
	LogLevel            string `toml:"log_level"`
	MaxConcurrency      int    `toml:"max_concurrency"`
	BatchSize           int    `toml:"batch_size"`
	ReceiverIdleTimeout string `toml:"receiver_idle_timeout"`
	ReceiverTLSEnabled  bool   `toml:"receiver_tls_enabled"`
	ReceiverTLSCertFile string `toml:"receiver_tls_cert_file"`
	ReceiverTLSKeyFile  string `toml:"receiver_tls_key_file"`
	ReceiverTLSCAFile   string `toml:"receiver_tls_ca_file"`
}

// loadConfig overlays the TOML file at path onto the defaults. Only keys
// actually present in the file override the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load handoffd config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("node_id") {
		cfg.NodeID = strings.TrimSpace(raw.NodeID)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("max_concurrency") {
		if raw.MaxConcurrency < 0 {
			return config{}, fmt.Errorf("load handoffd config: max_concurrency must be non-negative, got %d", raw.MaxConcurrency)
		}
		cfg.MaxConcurrency = raw.MaxConcurrency
	}
	if meta.IsDefined("batch_size") {
		cfg.BatchSize = raw.BatchSize
	}
	if meta.IsDefined("receiver_idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReceiverIdleTimeout))
		if err != nil {
			return config{}, fmt.Errorf("load handoffd config: receiver_idle_timeout: %w", err)
		}
		cfg.ReceiverIdleTimeout = d
	}
	if meta.IsDefined("receiver_tls_enabled") {
		cfg.ReceiverTLSEnabled = raw.ReceiverTLSEnabled
	}
	if meta.IsDefined("receiver_tls_cert_file") {
		cfg.ReceiverTLSCertFile = strings.TrimSpace(raw.ReceiverTLSCertFile)
	}
	if meta.IsDefined("receiver_tls_key_file") {
		cfg.ReceiverTLSKeyFile = strings.TrimSpace(raw.ReceiverTLSKeyFile)
	}
	if meta.IsDefined("receiver_tls_ca_file") {
		cfg.ReceiverTLSCAFile = strings.TrimSpace(raw.ReceiverTLSCAFile)
	}

	if cfg.ReceiverTLSEnabled && (cfg.ReceiverTLSCertFile == "" || cfg.ReceiverTLSKeyFile == "") {
		return config{}, fmt.Errorf("load handoffd config: receiver TLS enabled but cert/key files missing")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
