package config

import (
	"context"
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

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
bindAddr: ":9090"
databasePath: /var/lib/ranchportal/portal.db
sessionTtl: 2h
attendanceInterval: 15m
timezone: UTC
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.BindAddr)
	assert.Equal(t, "/var/lib/ranchportal/portal.db", cfg.DatabasePath)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.AttendanceInterval)
	assert.True(t, cfg.MetricsEnabled, "defaults survive partial files")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "bindAddr: \":9090\"\n")
	t.Setenv("RANCHPORTAL_BIND_ADDR", ":7000")
	t.Setenv("RANCHPORTAL_SESSION_SECRET", "s3cret")
	t.Setenv("RANCHPORTAL_METRICS_ENABLED", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.BindAddr)
	assert.Equal(t, "s3cret", cfg.SessionSecret)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoadConfigRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, "timezone: Mars/Olympus_Mons\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := Defaults()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
