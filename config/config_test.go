package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const testYAML = `
mqtt:
  broker: tcp://localhost:1883
  username: rvc
  timeout_ms: 1500
confirm:
  max_retries: 4
  retry_delay_seconds: 2.5
  confirm_window_seconds: 6
  burst_seconds: 3
  burst_interval_ms: 250
  nudge_enabled: true
  probe_on_fail: true
  probe_seconds: 15
  probe_out_path: captures/test.jsonl
metrics:
  prometheus_enabled: true
  prometheus_port: 9200
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", testYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	require.Equal(t, "rvc", cfg.MQTT.Username)
	require.Equal(t, 1500, cfg.MQTT.TimeoutMS)
	require.NotEmpty(t, cfg.MQTT.ClientID)

	require.Equal(t, 4, cfg.Confirm.MaxRetries)
	require.True(t, cfg.Confirm.NudgeEnabled)
	require.True(t, cfg.Metrics.PrometheusEnabled)
	require.Equal(t, 9200, cfg.Metrics.PrometheusPort)

	p := cfg.Confirm.Params()
	require.Equal(t, 4, p.MaxRetries)
	require.Equal(t, 2500*time.Millisecond, p.RetryDelay)
	require.Equal(t, 6*time.Second, p.ConfirmWindow)
	require.Equal(t, 3*time.Second, p.BurstDuration)
	require.Equal(t, 250*time.Millisecond, p.BurstInterval)
	require.Equal(t, 15*time.Second, p.ProbeWindow)
	require.Equal(t, "captures/test.jsonl", p.ProbeOutPath)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"mqtt":{"broker":"tcp://10.0.0.5:1883"},"confirm":{"max_retries":2}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://10.0.0.5:1883", cfg.MQTT.Broker)
	require.Equal(t, 2, cfg.Confirm.MaxRetries)
	// Untouched sections still receive defaults.
	require.Equal(t, 5000, cfg.MQTT.TimeoutMS)
	require.Equal(t, 9105, cfg.Metrics.PrometheusPort)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", testYAML)
	t.Setenv("K_MQTT__BROKER", "tcp://override:1883")
	t.Setenv("K_MQTT__PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://override:1883", cfg.MQTT.Broker)
	require.Equal(t, "hunter2", cfg.MQTT.Password)
	// File-only values survive the overlay.
	require.Equal(t, "rvc", cfg.MQTT.Username)
}

func TestLoadErrors(t *testing.T) {
	checks := []struct {
		name string
		path string
	}{
		{"unsupported extension", writeConfig(t, "config.toml", "broker = 'x'")},
		{"missing file", filepath.Join(t.TempDir(), "absent.yaml")},
		{"missing broker", writeConfig(t, "config.yaml", "confirm:\n  max_retries: 1\n")},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(c.path)
			require.Error(t, err)
		})
	}
}
