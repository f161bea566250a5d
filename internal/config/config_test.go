package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "mqtt", cfg.Store.Backend)
	assert.Equal(t, time.Second, cfg.Poll.Interval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Poll.SettingsBackoff.Duration())
	assert.Equal(t, "databox-driver-phillipshue", cfg.Hue.AppName)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.False(t, cfg.HTTP.TLSEnabled())
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention())
}

func TestLoadFileAndEnvExpansion(t *testing.T) {
	t.Setenv("HUE_TEST_BROKER", "tcp://broker:1883")

	path := writeConfig(t, `
poll:
  interval: 250ms
store:
  backend: memory
  mqtt:
    broker: ${HUE_TEST_BROKER}
    prefix: ${HUE_TEST_PREFIX:home/hue}
http:
  port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval.Duration())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "tcp://broker:1883", cfg.Store.MQTT.Broker)
	assert.Equal(t, "home/hue", cfg.Store.MQTT.Prefix)
	assert.Equal(t, 9000, cfg.HTTP.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HUED_HTTP_PORT", "7070")
	t.Setenv("HUED_POLL_INTERVAL", "3s")
	t.Setenv("HUED_HUE_APP_NAME", "override")

	path := writeConfig(t, "http:\n  port: 9000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval.Duration())
	assert.Equal(t, "override", cfg.Hue.AppName)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "store:\n  backend: kafka\n"},
		{"bad qos", "store:\n  mqtt:\n    qos: 3\n"},
		{"influx without url", "store:\n  influx:\n    enabled: true\n"},
		{"cert without key", "http:\n  tls_cert: cert.pem\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "poll:\n  interval: soon\n"))
	assert.Error(t, err)
}
