// Package config loads the relay configuration from an optional YAML file
// and RELAYNET_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// EnvPrefix prefixes every environment variable, e.g. RELAYNET_MAJOR.
const EnvPrefix = "RELAYNET"

// DefaultConfigName is searched for in the working directory when no file
// is given.
const DefaultConfigName = "relaynet"

// Config is the complete relay configuration.
type Config struct {
	Addr              string          `mapstructure:"addr"`
	Env               string          `mapstructure:"env"`
	Major             uint32          `mapstructure:"major"`
	Minor             uint32          `mapstructure:"minor"`
	MaxPlayers        int             `mapstructure:"max_players"`
	ConnectionTimeout time.Duration   `mapstructure:"connection_timeout"`
	LogLevel          string          `mapstructure:"log_level"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
	Heartbeat         HeartbeatConfig `mapstructure:"heartbeat"`
}

// RateLimitConfig limits inbound messages per socket.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// HeartbeatConfig configures the server directory announcements.
type HeartbeatConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Name        string        `mapstructure:"name"`
	Domain      string        `mapstructure:"domain"`
	Description string        `mapstructure:"description"`
	Port        int           `mapstructure:"port"`
	APIKey      string        `mapstructure:"api_key"`
	Interval    time.Duration `mapstructure:"interval"`
	ListURL     string        `mapstructure:"list_url"`
	APIURL      string        `mapstructure:"api_url"`
	IPURL       string        `mapstructure:"ip_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":3678")
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("major", 0)
	v.SetDefault("minor", 0)
	v.SetDefault("max_players", 24)
	v.SetDefault("connection_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.messages_per_second", 100)
	v.SetDefault("rate_limit.burst", 200)

	v.SetDefault("heartbeat.enabled", false)
	v.SetDefault("heartbeat.name", "")
	v.SetDefault("heartbeat.domain", "")
	v.SetDefault("heartbeat.description", "")
	v.SetDefault("heartbeat.port", 3678)
	v.SetDefault("heartbeat.api_key", "")
	v.SetDefault("heartbeat.interval", 10*time.Second)
	v.SetDefault("heartbeat.list_url", "https://smmdb.ddns.net/net64")
	v.SetDefault("heartbeat.api_url", "https://smmdb.ddns.net/api/net64server")
	v.SetDefault("heartbeat.ip_url", "http://ip-api.com/json")
}

// Load reads the configuration. path names a config file; when empty,
// relaynet.yaml is looked up in the working directory and may be absent.
// Environment variables override the file, e.g. RELAYNET_RATE_LIMIT_BURST.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
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

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Env != EnvDevelopment && c.Env != EnvProduction:
		return fmt.Errorf("config: env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	case c.MaxPlayers < 1 || c.MaxPlayers > 255:
		return fmt.Errorf("config: max_players must be within 1..255, got %d", c.MaxPlayers)
	case c.ConnectionTimeout <= 0:
		return fmt.Errorf("config: connection_timeout must be positive, got %s", c.ConnectionTimeout)
	case c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0):
		return errors.New("config: rate_limit needs a positive messages_per_second and burst")
	case c.Heartbeat.Enabled && c.Heartbeat.APIKey == "":
		return errors.New("config: heartbeat.api_key is required when the heartbeat is enabled")
	case c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0:
		return errors.New("config: heartbeat.interval must be positive")
	}
	return nil
}

// Production reports whether unexpected faults must be hidden from clients.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}
