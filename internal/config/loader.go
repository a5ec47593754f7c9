package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "GRIDPROBE",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "GRIDPROBE",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (GRIDPROBE_*)
// 3. Project config (.gridprobe.yaml in current directory)
// 4. User config (~/.config/gridprobe/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".gridprobe")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "gridprobe"))
		}
	}

	// Read config file (ignore not found)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Server defaults
	l.v.SetDefault("server.host", "127.0.0.1")
	l.v.SetDefault("server.port", 8480)
	l.v.SetDefault("server.shutdown_timeout", "10s")

	// Catalog defaults
	l.v.SetDefault("catalog.dir", "puzzles")

	// Storage defaults
	l.v.SetDefault("storage.driver", "sqlite")
	l.v.SetDefault("storage.path", ".gridprobe/results.db")

	// Session defaults
	l.v.SetDefault("session.retention", "5m")
	l.v.SetDefault("session.default_timeout", "30m")
	l.v.SetDefault("session.event_buffer", 256)

	// Provider defaults. Slot width 1 mirrors a per-provider rate budget;
	// raise it only for providers whose quota allows overlap.
	l.v.SetDefault("providers.openai.protocol", "responses")
	l.v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	l.v.SetDefault("providers.openai.api_key_env", "OPENAI_API_KEY")
	l.v.SetDefault("providers.openai.default_model", "gpt-5.1")
	l.v.SetDefault("providers.openai.slots", 1)
	l.v.SetDefault("providers.openai.timeout", "45m")
	l.v.SetDefault("providers.openai.max_output_tokens", 0)

	l.v.SetDefault("providers.grok.protocol", "chat")
	l.v.SetDefault("providers.grok.base_url", "https://api.x.ai/v1")
	l.v.SetDefault("providers.grok.api_key_env", "XAI_API_KEY")
	l.v.SetDefault("providers.grok.default_model", "grok-4")
	l.v.SetDefault("providers.grok.slots", 1)
	l.v.SetDefault("providers.grok.timeout", "30m")

	l.v.SetDefault("providers.deepseek.protocol", "chat")
	l.v.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com/v1")
	l.v.SetDefault("providers.deepseek.api_key_env", "DEEPSEEK_API_KEY")
	l.v.SetDefault("providers.deepseek.default_model", "deepseek-reasoner")
	l.v.SetDefault("providers.deepseek.slots", 1)
	l.v.SetDefault("providers.deepseek.timeout", "30m")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
