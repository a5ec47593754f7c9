package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultFileConfig is the document written by WriteDefault. Keys mirror the
// mapstructure tags on Config.
func defaultFileConfig() map[string]interface{} {
	return map[string]interface{}{
		"log": map[string]interface{}{
			"level":  "info",
			"format": "auto",
		},
		"server": map[string]interface{}{
			"host": "127.0.0.1",
			"port": 8480,
		},
		"catalog": map[string]interface{}{
			"dir": "puzzles",
		},
		"storage": map[string]interface{}{
			"driver": "sqlite",
			"path":   ".gridprobe/results.db",
		},
		"session": map[string]interface{}{
			"retention":       "5m",
			"default_timeout": "30m",
		},
		"providers": map[string]interface{}{
			"openai": map[string]interface{}{
				"protocol":      "responses",
				"base_url":      "https://api.openai.com/v1",
				"api_key_env":   "OPENAI_API_KEY",
				"default_model": "gpt-5.1",
				"slots":         1,
				"timeout":       "45m",
			},
			"grok": map[string]interface{}{
				"protocol":      "chat",
				"base_url":      "https://api.x.ai/v1",
				"api_key_env":   "XAI_API_KEY",
				"default_model": "grok-4",
				"slots":         1,
				"timeout":       "30m",
			},
		},
	}
}

// WriteDefault writes a default config file atomically. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(defaultFileConfig())
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := atomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
