package config

import (
	"log/slog"
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

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "data/plantcare.json", cfg.Storage.FilePath)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "android", cfg.Device.Platform)
	assert.Equal(t, "granted", cfg.Device.Permission)
	assert.False(t, cfg.Device.Simulated)
	assert.Equal(t, 30, cfg.Pushover.RequestsPerMinute)
	assert.Equal(t, 9, cfg.Schedule.SendingHour)
	assert.True(t, cfg.Schedule.SkipPastTriggers)
	assert.Equal(t, time.Hour, cfg.Schedule.RemindLater)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Retry.RetryDelay)
	assert.Equal(t, time.Hour, cfg.Retry.MaxDelay)
	assert.Equal(t, 15*time.Minute, cfg.Retry.Timeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
server:
  port: ":9090"
  api_token: secret
schedule:
  sending_hour: 7
  timezone: UTC
  remind_later: 30m
retry:
  max_retries: 1
  retry_delay: 5s
  timeout: 2m
device:
  platform: ios
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIToken)
	assert.Equal(t, 7, cfg.Schedule.SendingHour)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.RemindLater)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Retry.RetryDelay)
	assert.Equal(t, 2*time.Minute, cfg.Retry.Timeout)
	assert.Equal(t, "ios", cfg.Device.Platform)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \":9090\"\n")
	t.Setenv("PLANTCARE_SERVER_PORT", ":7070")
	t.Setenv("PLANTCARE_PUSHOVER_TOKEN", "app-token")
	t.Setenv("PLANTCARE_DATABASE_URL", "postgres://localhost/plants")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Port)
	assert.Equal(t, "app-token", cfg.Pushover.Token)
	assert.Equal(t, "postgres://localhost/plants", cfg.Database.URL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed yaml": "server: [",
		"sending hour":   "schedule:\n  sending_hour: 24\n",
		"timezone":       "schedule:\n  timezone: Mars/Olympus\n",
		"platform":       "device:\n  platform: web\n",
		"permission":     "device:\n  permission: maybe\n",
		"retries":        "retry:\n  max_retries: 0\n",
		"log level":      "log:\n  level: loud\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
