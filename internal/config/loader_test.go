package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	// Run from a temp dir so a developer's local .gridprobe.yaml doesn't leak in.
	chdirTemp(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Session.Retention)
	assert.Equal(t, 30*time.Minute, cfg.Session.DefaultTimeout)

	openai, ok := cfg.Providers["openai"]
	require.True(t, ok, "openai provider should be configured by default")
	assert.Equal(t, "responses", openai.Protocol)
	assert.Equal(t, "OPENAI_API_KEY", openai.APIKeyEnv)
	assert.Equal(t, 1, openai.EffectiveSlots())

	grok, ok := cfg.Providers["grok"]
	require.True(t, ok)
	assert.Equal(t, "chat", grok.Protocol)

	require.NoError(t, Validate(cfg))
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridprobe.yaml")
	content := []byte(`
log:
  level: debug
session:
  retention: 10m
providers:
  openai:
    slots: 2
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Minute, cfg.Session.Retention)
	assert.Equal(t, 2, cfg.Providers["openai"].Slots)
	// Defaults still merged under the overridden provider
	assert.Equal(t, "responses", cfg.Providers["openai"].Protocol)
}

func TestLoader_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GRIDPROBE_LOG_LEVEL", "error")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Log:     LogConfig{Level: "info", Format: "auto"},
			Server:  ServerConfig{Port: 8480},
			Storage: StorageConfig{Driver: "memory"},
			Session: SessionConfig{Retention: time.Minute, DefaultTimeout: time.Minute},
			Providers: map[string]ProviderConfig{
				"openai": {Protocol: "responses", BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
			},
		}
	}

	require.NoError(t, Validate(base()))

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad port", func(c *Config) { c.Server.Port = 99999 }, "server.port"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.Path = "" }, "storage.path"},
		{"zero retention", func(c *Config) { c.Session.Retention = 0 }, "session.retention"},
		{"no providers", func(c *Config) { c.Providers = nil }, "providers"},
		{"bad protocol", func(c *Config) {
			p := c.Providers["openai"]
			p.Protocol = "grpc"
			c.Providers["openai"] = p
		}, "protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gridprobe.yaml")

	require.NoError(t, WriteDefault(path))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "responses", cfg.Providers["openai"].Protocol)

	// Refuses to overwrite
	require.Error(t, WriteDefault(path))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
