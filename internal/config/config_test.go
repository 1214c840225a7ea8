package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SIGMO_ADDR", "SIGMO_STORAGE_DRIVER", "SIGMO_DATABASE_URL", "SIGMO_REDIS_URL",
		"SIGMO_REWRITE_PROVIDER", "SIGMO_REWRITE_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
		"SIGMO_ALLOWED_ORIGINS", "SIGMO_LOG_DEV", "SIGMO_PERIOD_DAYS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Rewrite.MaxAttempts)
	assert.Equal(t, 21, cfg.Engine.DefaultPeriodDays)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sigmo.yaml")
	data := []byte(`
server:
  addr: ":9090"
storage:
  driver: postgres
  database_url: postgres://localhost/sigmo
engine:
  thresholds:
    low_score_max: 1
rewrite:
  timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 1, cfg.Engine.Thresholds.LowScoreMax)
	assert.Equal(t, 14, cfg.Engine.Thresholds.MidPhaseEnd)
	assert.Equal(t, 5*time.Second, cfg.RewriteTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("SIGMO variables win over file values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SIGMO_ADDR", ":7000")
		t.Setenv("SIGMO_STORAGE_DRIVER", "memory")
		t.Setenv("SIGMO_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("SIGMO_LOG_DEV", "true")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Server.Addr)
		assert.Equal(t, DriverMemory, cfg.Storage.Driver)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
		assert.True(t, cfg.Logging.Development)
	})

	t.Run("provider key selects provider when unset", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "g-key")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Rewrite.Provider)
		assert.Equal(t, "g-key", cfg.Rewrite.APIKey)
	})

	t.Run("explicit provider is kept", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "o-key")
		t.Setenv("SIGMO_REWRITE_PROVIDER", "gemini")
		t.Setenv("SIGMO_REWRITE_API_KEY", "g-key")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Rewrite.Provider)
		assert.Equal(t, "g-key", cfg.Rewrite.APIKey)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"unknown provider", func(c *Config) { c.Rewrite.Provider = "claude" }},
		{"provider without key", func(c *Config) { c.Rewrite.Provider = "openai" }},
		{"bad thresholds", func(c *Config) { c.Engine.Thresholds.MidPhaseEnd = 1 }},
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"zero period", func(c *Config) { c.Engine.DefaultPeriodDays = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.TTL = "soon"
	cfg.Auth.TokenTTL = "-1h"
	assert.Equal(t, 36*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL())
}
