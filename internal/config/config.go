// Package config loads the daemon configuration from a TOML file with
// MCWARDEN_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/mcwarden/internal/env"
	"github.com/loykin/mcwarden/internal/lifecycle"
	"github.com/loykin/mcwarden/internal/logger"
	"github.com/loykin/mcwarden/internal/probe"
	"github.com/loykin/mcwarden/internal/process"
	"github.com/loykin/mcwarden/internal/rcon"
	mctls "github.com/loykin/mcwarden/internal/tls"
)

const EnvPrefix = "MCWARDEN"

// Config is the top-level TOML structure.
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Lifecycle lifecycle.Config    `mapstructure:"lifecycle"`
	Probe     ProbeConfig         `mapstructure:"probe"`
	Rcon      RconConfig          `mapstructure:"rcon"`
	Admins    []string            `mapstructure:"admins"`
	AdminFile string              `mapstructure:"admin_file"`
	Notify    NotifyConfig        `mapstructure:"notify"`
	HTTP      HTTPConfig          `mapstructure:"http"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	History   HistoryConfig       `mapstructure:"history"`
	Log       logger.DaemonConfig `mapstructure:"log"`
}

type ServerConfig struct {
	Name            string        `mapstructure:"name"`
	Command         string        `mapstructure:"command"`
	WorkDir         string        `mapstructure:"workdir"`
	PropertiesFile  string        `mapstructure:"properties_file"`
	StopDirective   string        `mapstructure:"stop_directive"`
	GraceDelay      time.Duration `mapstructure:"grace_delay"`
	NiceCloseWindow time.Duration `mapstructure:"nice_close_window"`
	Env             []string      `mapstructure:"env"`
	EnvFiles        []string      `mapstructure:"env_files"`
	Log             logger.Config `mapstructure:"log"` // server stdout/stderr capture
}

type ProbeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type RconConfig struct {
	Host    string        `mapstructure:"host"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	StatusWebhook string        `mapstructure:"status_webhook"`
	DevWebhook    string        `mapstructure:"dev_webhook"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FeedSize      int           `mapstructure:"feed_size"`
	Greeting      bool          `mapstructure:"greeting"`
}

type HTTPConfig struct {
	Enabled   bool         `mapstructure:"enabled"`
	Listen    string       `mapstructure:"listen"`
	BasePath  string       `mapstructure:"base_path"`
	RateLimit float64      `mapstructure:"rate_limit"` // commands per second per caller
	RateBurst int          `mapstructure:"rate_burst"`
	TLS       mctls.Config `mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type HistoryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	DSNs    []string      `mapstructure:"dsns"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", process.DefaultName)
	v.SetDefault("server.command", "")
	v.SetDefault("server.workdir", "")
	v.SetDefault("server.properties_file", process.DefaultPropertiesFile)
	v.SetDefault("server.stop_directive", process.DefaultStopDirective)
	v.SetDefault("server.grace_delay", process.DefaultGraceDelay)
	v.SetDefault("server.nice_close_window", process.DefaultNiceCloseWindow)

	v.SetDefault("lifecycle.status_address", probe.DefaultAddress)
	v.SetDefault("lifecycle.watchdog_interval", lifecycle.DefaultWatchdogInterval)
	v.SetDefault("lifecycle.idle_poll_interval", lifecycle.DefaultIdlePollInterval)
	v.SetDefault("lifecycle.idle_countdown", lifecycle.DefaultIdleCountdown)
	v.SetDefault("lifecycle.confirm_window", lifecycle.DefaultConfirmWindow)

	v.SetDefault("probe.timeout", probe.DefaultTimeout)
	v.SetDefault("rcon.host", "localhost")
	v.SetDefault("rcon.timeout", rcon.DefaultTimeout)
	v.SetDefault("admins", []string{})
	v.SetDefault("admin_file", "")

	v.SetDefault("notify.status_webhook", "")
	v.SetDefault("notify.dev_webhook", "")
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.feed_size", 100)
	v.SetDefault("notify.greeting", true)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:8080")
	v.SetDefault("http.base_path", "/api")
	v.SetDefault("http.rate_limit", 2.0)
	v.SetDefault("http.rate_burst", 5)
	v.SetDefault("http.tls.enabled", false)
	v.SetDefault("http.tls.min_version", "1.3")
	v.SetDefault("http.tls.valid_days", 365)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsns", []string{})
	v.SetDefault("history.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load reads path (TOML) and applies defaults and MCWARDEN_* overrides.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the constraints Load cannot express as defaults.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Command) == "" {
		errs = append(errs, errors.New("server.command is required"))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"lifecycle.watchdog_interval", c.Lifecycle.WatchdogInterval},
		{"lifecycle.idle_poll_interval", c.Lifecycle.IdlePollInterval},
		{"lifecycle.idle_countdown", c.Lifecycle.IdleCountdown},
		{"lifecycle.confirm_window", c.Lifecycle.ConfirmWindow},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.val))
		}
	}
	if c.HTTP.Enabled && c.HTTP.RateLimit <= 0 {
		errs = append(errs, errors.New("http.rate_limit must be positive"))
	}
	if c.History.Enabled && len(c.History.DSNs) == 0 {
		errs = append(errs, errors.New("history.enabled requires at least one entry in history.dsns"))
	}
	return errors.Join(errs...)
}

// ProcessSpec builds the supervisor spec, folding env files under the
// inline env list.
func (c *Config) ProcessSpec() (process.Spec, error) {
	var fileVars []string
	for _, p := range c.Server.EnvFiles {
		kv, err := env.ParseFile(p)
		if err != nil {
			return process.Spec{}, fmt.Errorf("server.env_files: %w", err)
		}
		fileVars = append(fileVars, kv...)
	}
	var vars []string
	if len(fileVars) > 0 || len(c.Server.Env) > 0 {
		vars = env.Merge(fileVars, c.Server.Env)
	}
	return process.Spec{
		Name:            c.Server.Name,
		Command:         c.Server.Command,
		WorkDir:         c.Server.WorkDir,
		Env:             vars,
		PropertiesFile:  c.Server.PropertiesFile,
		RconHost:        c.Rcon.Host,
		StopDirective:   c.Server.StopDirective,
		GraceDelay:      c.Server.GraceDelay,
		NiceCloseWindow: c.Server.NiceCloseWindow,
		Log:             c.Server.Log,
	}, nil
}
