package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"kimp/internal/arbitrage"
	"kimp/internal/engine"
	"kimp/internal/strategy/auto"
	"kimp/internal/strategy/user"
)

// VenueConfig carries one venue's API credentials. Both keys may be empty
// for market-data-only operation; authenticated calls then fail cleanly.
type VenueConfig struct {
	AccessKey string `mapstructure:"access_key" json:"-"`
	SecretKey string `mapstructure:"secret_key" json:"-"`
}

// AppConfig covers process-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	Listen   string `mapstructure:"listen" json:"listen"`
	DBPath   string `mapstructure:"db_path" json:"db_path"`
}

// Config is the full configuration tree.
type Config struct {
	App       AppConfig        `mapstructure:"app" json:"app"`
	Engine    engine.Config    `mapstructure:"engine" json:"engine"`
	Upbit     VenueConfig      `mapstructure:"upbit" json:"-"`
	Bybit     VenueConfig      `mapstructure:"bybit" json:"-"`
	Auto      auto.Config      `mapstructure:"auto" json:"auto"`
	User      user.Config      `mapstructure:"user" json:"user"`
	Arbitrage arbitrage.Config `mapstructure:"arbitrage" json:"arbitrage"`
}

// Default returns the full default tree.
func Default() Config {
	return Config{
		App:       AppConfig{LogLevel: "info", Listen: ":8080", DBPath: "data/kimp.db"},
		Engine:    engine.DefaultConfig(),
		Auto:      auto.DefaultConfig(),
		User:      user.DefaultConfig(),
		Arbitrage: arbitrage.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults and validates every
// section. Environment variables prefixed KIMP_ override file values.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch re-decodes the file on every change event and hands the result to
// onChange. Decode or validation failures keep the previous config and
// are reported through onError.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KIMP")
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Listen == "" {
		return fmt.Errorf("app.listen is required")
	}
	if c.App.DBPath == "" {
		return fmt.Errorf("app.db_path is required")
	}
	if c.Engine.IntervalSec <= 0 {
		return fmt.Errorf("engine.interval_sec must be > 0")
	}
	if c.Engine.BackoffSec <= 0 {
		return fmt.Errorf("engine.backoff_sec must be > 0")
	}
	if c.Engine.SeedKRW <= 0 {
		return fmt.Errorf("engine.seed_krw must be > 0")
	}
	if err := c.Auto.Validate(); err != nil {
		return err
	}
	if err := c.User.Validate(); err != nil {
		return err
	}
	return c.Arbitrage.Validate()
}
