package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "drawwatcher", cfg.App.Name)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "America/New_York", cfg.Schedule.Timezone)
	assert.Equal(t, "0 1 * * TUE,THU,SUN", cfg.Schedule.TriggerRule)
	assert.Equal(t, 2.0, cfg.Ledger.Stake)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
scheduler:
  active_interval: 2m
  idle_interval: 30m
sources:
  api:
    base_url: https://example.test
    api_key: secret
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", cfg.Sources.API.BaseURL)
	assert.Equal(t, "2m0s", cfg.Scheduler.ActiveInterval.String())
	assert.Equal(t, "30m0s", cfg.Scheduler.IdleInterval.String())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Schedule.TriggerRule = "not cron"
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Schedule.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Scheduler.IdleInterval = 0
	assert.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Alerting.Telegram.Enabled = true
	assert.Error(t, cfg.Validate(), "telegram enabled without credentials")
}
