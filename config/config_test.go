package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, RemoteMemory, cfg.Remote.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.DebounceWindow)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  rateLimit: 10
store:
  path: /tmp/stock.db
scheduler:
  interval: 30s
  concurrency: 8
reconcile:
  debounceWindow: 2m
  autoCorrectLimit: 5
  autoCorrectRatio: "0.25"
log:
  level: debug
  format: console
skus: [sku-1, sku-2]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.RateLimit)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "untouched keys keep defaults")
	assert.Equal(t, "/tmp/stock.db", cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, []string{"sku-1", "sku-2"}, cfg.SKUs)
	assert.Equal(t, "console", cfg.Log.Format)

	policy, err := cfg.ReconcilePolicy()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, policy.DebounceWindow)
	assert.Equal(t, int64(5), policy.AutoCorrectLimit)
	assert.True(t, policy.AutoCorrectRatio.Equal(decimal.RequireFromString("0.25")))
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
remote:
  driver: memory
`)
	t.Setenv("STOCKSYNC_SERVER_ADDR", ":7070")
	t.Setenv("STOCKSYNC_REMOTE_DRIVER", "redis")
	t.Setenv("STOCKSYNC_REMOTE_REDIS_ADDR", "redis:6379")
	t.Setenv("STOCKSYNC_RECONCILE_DEBOUNCE_WINDOW", "45s")
	t.Setenv("STOCKSYNC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, RemoteRedis, cfg.Remote.Driver)
	assert.Equal(t, "redis:6379", cfg.Remote.RedisAddr)
	assert.Equal(t, 45*time.Second, cfg.Reconcile.DebounceWindow)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "rateLimit"},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"unknown driver", func(c *Config) { c.Remote.Driver = "kafka" }, "remote.driver"},
		{"redis without addr", func(c *Config) {
			c.Remote.Driver = RemoteRedis
			c.Remote.RedisAddr = ""
		}, "redisAddr"},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval"},
		{"disabled scheduler ignores interval", func(c *Config) {
			c.Scheduler.Enabled = false
			c.Scheduler.Interval = 0
		}, ""},
		{"zero concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }, "concurrency"},
		{"negative limit", func(c *Config) { c.Reconcile.AutoCorrectLimit = -1 }, "autoCorrectLimit"},
		{"bad ratio", func(c *Config) { c.Reconcile.AutoCorrectRatio = "ten percent" }, "autoCorrectRatio"},
		{"negative ratio", func(c *Config) { c.Reconcile.AutoCorrectRatio = "-0.1" }, "autoCorrectRatio"},
		{"empty sku", func(c *Config) { c.SKUs = []string{"a", ""} }, "skus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
