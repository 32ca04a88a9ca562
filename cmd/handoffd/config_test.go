package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HANDOFFD_ADDR", "")
	t.Setenv("HANDOFFD_NODE_ID", "")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.MaxConcurrency)
	assert.Equal(t, 128, cfg.BatchSize)
	assert.False(t, cfg.ReceiverTLSEnabled)
}

func TestLoadConfigEnvOverridesAddr(t *testing.T) {
	t.Setenv("HANDOFFD_ADDR", ":9999")
	t.Setenv("HANDOFFD_NODE_ID", "env-node")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "env-node", cfg.NodeID)
}

// TestLoadConfigOverlay verifies that only keys present in the file
// override the defaults.
func TestLoadConfigOverlay(t *testing.T) {
	t.Setenv("HANDOFFD_ADDR", "")
	t.Setenv("HANDOFFD_NODE_ID", "")

	path := writeConfigFile(t, `
addr = ":7070"
max_concurrency = 4
receiver_idle_timeout = "45s"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.ReceiverIdleTimeout)

	// Untouched keys keep their defaults.
	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 128, cfg.BatchSize)
}

func TestLoadConfigExplicitZeroConcurrency(t *testing.T) {
	path := writeConfigFile(t, `max_concurrency = 0`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxConcurrency)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "negative max_concurrency", body: `max_concurrency = -1`},
		{name: "bad idle timeout", body: `receiver_idle_timeout = "soon"`},
		{name: "malformed toml", body: `addr = `},
		{
			name: "tls without cert and key",
			body: `receiver_tls_enabled = true`,
		},
		{
			name: "tls without key",
			body: "receiver_tls_enabled = true\nreceiver_tls_cert_file = \"/tmp/cert.pem\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.body)
			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigTLSComplete(t *testing.T) {
	path := writeConfigFile(t, `
receiver_tls_enabled = true
receiver_tls_cert_file = "/etc/atoll/cert.pem"
receiver_tls_key_file = "/etc/atoll/key.pem"
receiver_tls_ca_file = "/etc/atoll/ca.pem"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.ReceiverTLSEnabled)
	assert.Equal(t, "/etc/atoll/cert.pem", cfg.ReceiverTLSCertFile)
	assert.Equal(t, "/etc/atoll/key.pem", cfg.ReceiverTLSKeyFile)
	assert.Equal(t, "/etc/atoll/ca.pem", cfg.ReceiverTLSCAFile)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
