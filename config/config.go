// Package config loads service configuration from a YAML file with
// environment overrides.
//
// Precedence, lowest first: Default(), the YAML file, STOCKSYNC_* env vars,
// then command-line flags applied by cmd/server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-sync/inventory"
	"github.com/warp/stock-sync/logging"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. STOCKSYNC_SERVER_ADDR.
const EnvPrefix = "STOCKSYNC"

const (
	RemoteMemory = "memory"
	RemoteRedis  = "redis"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"server"`
	Store     StoreConfig     `yaml:"store" envconfig:"store"`
	Remote    RemoteConfig    `yaml:"remote" envconfig:"remote"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"scheduler"`
	Reconcile ReconcileConfig `yaml:"reconcile" envconfig:"reconcile"`
	Log       logging.Config  `yaml:"log" envconfig:"log"`

	// SKUs are opened at startup even if the store has never seen them.
	SKUs []string `yaml:"skus" envconfig:"skus"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" envconfig:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"read_timeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" envconfig:"idle_timeout"`
	RateLimit    int           `yaml:"rateLimit" envconfig:"rate_limit"` // requests per minute per IP, 0 disables
	CORSOrigins  []string      `yaml:"corsOrigins" envconfig:"cors_origins"`
}

type StoreConfig struct {
	Path string `yaml:"path" envconfig:"path"`
}

type RemoteConfig struct {
	Driver      string `yaml:"driver" envconfig:"driver"` // memory or redis
	RedisAddr   string `yaml:"redisAddr" envconfig:"redis_addr"`
	RedisPrefix string `yaml:"redisPrefix" envconfig:"redis_prefix"`
}

type SchedulerConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"enabled"`
	Interval    time.Duration `yaml:"interval" envconfig:"interval"`
	Concurrency int           `yaml:"concurrency" envconfig:"concurrency"`
}

type ReconcileConfig struct {
	DebounceWindow   time.Duration `yaml:"debounceWindow" envconfig:"debounce_window"`
	AutoCorrectLimit int64         `yaml:"autoCorrectLimit" envconfig:"auto_correct_limit"`
	AutoCorrectRatio string        `yaml:"autoCorrectRatio" envconfig:"auto_correct_ratio"` // decimal, e.g. "0.1"
}

// Default returns a configuration that runs locally without any file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit:    600,
			CORSOrigins:  []string{"*"},
		},
		Store:  StoreConfig{Path: "stocksync.db"},
		Remote: RemoteConfig{Driver: RemoteMemory, RedisAddr: "127.0.0.1:6379"},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    time.Minute,
			Concurrency: 4,
		},
		Reconcile: ReconcileConfig{
			DebounceWindow:   inventory.DefaultDebounceWindow,
			AutoCorrectRatio: "0",
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads path (if not empty) over the defaults, applies env overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rateLimit must be >= 0")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	switch c.Remote.Driver {
	case RemoteMemory:
	case RemoteRedis:
		if c.Remote.RedisAddr == "" {
			return errors.New("remote.redisAddr is required for the redis driver")
		}
	default:
		return fmt.Errorf("remote.driver must be %s or %s, got %q", RemoteMemory, RemoteRedis, c.Remote.Driver)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be > 0")
	}
	if c.Scheduler.Concurrency < 1 {
		return errors.New("scheduler.concurrency must be >= 1")
	}
	if c.Reconcile.DebounceWindow < 0 {
		return errors.New("reconcile.debounceWindow must be >= 0")
	}
	if c.Reconcile.AutoCorrectLimit < 0 {
		return errors.New("reconcile.autoCorrectLimit must be >= 0")
	}
	if _, err := c.ratio(); err != nil {
		return err
	}
	for _, sku := range c.SKUs {
		if sku == "" {
			return errors.New("skus must not contain empty entries")
		}
	}
	return nil
}

// ReconcilePolicy converts the reconcile section for the engine.
func (c Config) ReconcilePolicy() (inventory.ReconcilePolicy, error) {
	ratio, err := c.ratio()
	if err != nil {
		return inventory.ReconcilePolicy{}, err
	}
	return inventory.ReconcilePolicy{
		DebounceWindow:   c.Reconcile.DebounceWindow,
		AutoCorrectLimit: c.Reconcile.AutoCorrectLimit,
		AutoCorrectRatio: ratio,
	}, nil
}

func (c Config) ratio() (decimal.Decimal, error) {
	if c.Reconcile.AutoCorrectRatio == "" {
		return decimal.Zero, nil
	}
	ratio, err := decimal.NewFromString(c.Reconcile.AutoCorrectRatio)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reconcile.autoCorrectRatio: %w", err)
	}
	if ratio.IsNegative() {
		return decimal.Zero, errors.New("reconcile.autoCorrectRatio must be >= 0")
	}
	return ratio, nil
}
