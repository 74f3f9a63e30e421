package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "relaynet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadDefaults tests the configuration without file or environment
func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3678", cfg.Addr)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.False(t, cfg.Production())
	assert.Equal(t, 24, cfg.MaxPlayers)
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100.0, cfg.RateLimit.MessagesPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.False(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, "http://ip-api.com/json", cfg.Heartbeat.IPURL)
}

// TestLoadFile tests values read from a YAML file
func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
env: production
major: 1
minor: 2
max_players: 8
connection_timeout: 5s
rate_limit:
  enabled: false
heartbeat:
  enabled: true
  name: Castle
  api_key: secret
  interval: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.True(t, cfg.Production())
	assert.Equal(t, uint32(1), cfg.Major)
	assert.Equal(t, uint32(2), cfg.Minor)
	assert.Equal(t, 8, cfg.MaxPlayers)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, "Castle", cfg.Heartbeat.Name)
	assert.Equal(t, "secret", cfg.Heartbeat.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 3678, cfg.Heartbeat.Port)
}

// TestLoadEnvironmentOverrides tests that RELAYNET_ variables win over the file
func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "major: 1\nminor: 0\n")
	t.Setenv("RELAYNET_MAJOR", "3")
	t.Setenv("RELAYNET_ENV", "production")
	t.Setenv("RELAYNET_RATE_LIMIT_BURST", "50")
	t.Setenv("RELAYNET_CONNECTION_TIMEOUT", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), cfg.Major)
	assert.Equal(t, uint32(0), cfg.Minor)
	assert.True(t, cfg.Production())
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectionTimeout)
}

// TestLoadMissingFile tests that an explicit path must exist
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestValidate tests the configuration checks
func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Env:               EnvDevelopment,
			MaxPlayers:        24,
			ConnectionTimeout: time.Second,
			RateLimit:         RateLimitConfig{Enabled: true, MessagesPerSecond: 10, Burst: 10},
			Heartbeat:         HeartbeatConfig{Interval: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown env", mutate: func(c *Config) { c.Env = "staging" }, wantErr: true},
		{name: "no players", mutate: func(c *Config) { c.MaxPlayers = 0 }, wantErr: true},
		{name: "too many players", mutate: func(c *Config) { c.MaxPlayers = 256 }, wantErr: true},
		{name: "no timeout", mutate: func(c *Config) { c.ConnectionTimeout = 0 }, wantErr: true},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimit.Burst = 0 }, wantErr: true},
		{name: "zero burst without rate limit", mutate: func(c *Config) { c.RateLimit = RateLimitConfig{} }},
		{name: "heartbeat without key", mutate: func(c *Config) { c.Heartbeat.Enabled = true }, wantErr: true},
		{
			name: "heartbeat with key",
			mutate: func(c *Config) {
				c.Heartbeat.Enabled = true
				c.Heartbeat.APIKey = "key"
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
