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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "secret")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.BotToken)
	assert.Equal(t, "data/proxy.db", cfg.DatabasePath)
	assert.Equal(t, []string{"pk;", "pk!"}, cfg.Prefixes)
	assert.Equal(t, 6*time.Hour, cfg.LatchTimeout)
	assert.Equal(t, 3, cfg.Relay.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.BaseBackoff)
	assert.Equal(t, float64(5), cfg.Relay.WebhookRate)
	assert.Equal(t, int64(25<<20), cfg.Relay.MaxAttachmentBytes)
	assert.Zero(t, cfg.Retention.MaxAge)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
token: from-file
database_path: /var/lib/proxy/proxy.db
prefixes: ["!"]
latch_timeout: 1d
relay:
  max_attempts: 5
  base_backoff: 1s
retention:
  cron: "30 3 * * *"
  max_age: 90d
`)
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("RELAY_WEBHOOK_BURST", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.BotToken)
	assert.Equal(t, "/var/lib/proxy/proxy.db", cfg.DatabasePath)
	assert.Equal(t, []string{"!"}, cfg.Prefixes)
	assert.Equal(t, 24*time.Hour, cfg.LatchTimeout)
	assert.Equal(t, 5, cfg.Relay.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Relay.BaseBackoff)
	assert.Equal(t, 9, cfg.Relay.WebhookBurst)
	assert.Equal(t, "30 3 * * *", cfg.Retention.Cron)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention.MaxAge)
}

func TestLoadRejects(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		_, err := Load(writeConfig(t, "database_path: x.db\n"))
		assert.ErrorContains(t, err, "BOT_TOKEN")
	})

	t.Run("bad cron", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "secret")
		_, err := Load(writeConfig(t, "retention:\n  cron: nope\n  max_age: 30d\n"))
		assert.ErrorContains(t, err, "cron")
	})

	t.Run("negative rate limit waits", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "secret")
		_, err := Load(writeConfig(t, "relay:\n  max_rate_limit_waits: -1\n"))
		assert.ErrorContains(t, err, "max_rate_limit_waits")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "secret")
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		assert.Error(t, err)
	})
}
