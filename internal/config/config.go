// Package config loads gridprobe configuration from files, environment
// variables and flags.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log       LogConfig                 `mapstructure:"log"`
	Server    ServerConfig              `mapstructure:"server"`
	Catalog   CatalogConfig             `mapstructure:"catalog"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Session   SessionConfig             `mapstructure:"session"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CatalogConfig configures the puzzle catalog.
type CatalogConfig struct {
	// Dir is the directory of puzzle task JSON files.
	Dir string `mapstructure:"dir"`
}

// StorageConfig configures result persistence.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// SessionConfig configures the stream session manager.
type SessionConfig struct {
	// Retention is how long a completed session's continuation handle stays
	// reusable for retry.
	Retention time.Duration `mapstructure:"retention"`

	// DefaultTimeout bounds a provider call when the request carries none.
	// Reasoning-heavy models routinely run for tens of minutes.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	// EventBuffer is the initial per-session event buffer capacity.
	EventBuffer int `mapstructure:"event_buffer"`
}

// ProviderConfig configures a single provider endpoint.
type ProviderConfig struct {
	// Protocol selects the wire adapter: "responses" (stateful,
	// reasoning-capable) or "chat" (stateless).
	Protocol string `mapstructure:"protocol"`

	BaseURL   string `mapstructure:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env"`

	// DefaultModel is used when a request leaves model_id to the provider
	// default (CLI convenience only; the HTTP API requires model_id).
	DefaultModel string `mapstructure:"default_model"`

	// Slots is the per-provider concurrency width. One in-flight request
	// per provider unless a provider's rate budget allows more.
	Slots int `mapstructure:"slots"`

	Timeout time.Duration `mapstructure:"timeout"`

	// MaxOutputTokens caps a single call's output for the responses
	// protocol; zero leaves the provider default.
	MaxOutputTokens int `mapstructure:"max_output_tokens"`
}
