package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/newsletters.db", cfg.Database.DSN)
	require.Equal(t, "resend", cfg.Mail.Provider)
	require.Equal(t, 15, cfg.Dispatch.WindowMinutes)
	require.Equal(t, 4, cfg.Dispatch.Workers)
	require.Equal(t, "*/15 * * * *", cfg.Scheduler.DispatchCron)
	require.Equal(t, "info", cfg.Logging.Level)

	require.Equal(t, 15*time.Minute, cfg.Dispatch.Window())
	require.Equal(t, 10*time.Second, cfg.Dispatch.FetchTimeout())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: /var/lib/newsletters/prod.db
dispatch:
  window_minutes: 5
  workers: 8
logging:
  level: debug
  format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/newsletters/prod.db", cfg.Database.DSN)
	require.Equal(t, 5, cfg.Dispatch.WindowMinutes)
	require.Equal(t, 8, cfg.Dispatch.Workers)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)

	// Untouched keys keep their defaults.
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 10, cfg.Dispatch.FetchTimeoutSecs)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dispatch:\n  window_minutes: 5\n"), 0644))

	t.Setenv("NEWSLETTER_DISPATCH_WINDOW_MINUTES", "30")
	t.Setenv("NEWSLETTER_MAIL_API_KEY", "re_test_key")
	t.Setenv("NEWSLETTER_DATABASE_DSN", "/tmp/env.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 30, cfg.Dispatch.WindowMinutes)
	require.Equal(t, "re_test_key", cfg.Mail.APIKey)
	require.Equal(t, "/tmp/env.db", cfg.Database.DSN)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
