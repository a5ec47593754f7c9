package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of configuration problems.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration for consistency. It returns nil or a
// ValidationErrors value listing every problem found.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log.level", "must be one of debug, info, warn, error"})
	}
	switch cfg.Log.Format {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, ValidationError{"log.format", "must be one of auto, text, json"})
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{"server.port", "must be between 0 and 65535"})
	}

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, ValidationError{"storage.path", "required for sqlite driver"})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{"storage.driver", "must be sqlite or memory"})
	}

	if cfg.Session.Retention <= 0 {
		errs = append(errs, ValidationError{"session.retention", "must be positive"})
	}
	if cfg.Session.DefaultTimeout <= 0 {
		errs = append(errs, ValidationError{"session.default_timeout", "must be positive"})
	}

	if len(cfg.Providers) == 0 {
		errs = append(errs, ValidationError{"providers", "at least one provider is required"})
	}
	for name, p := range cfg.Providers {
		field := "providers." + name
		switch p.Protocol {
		case "responses", "chat":
		default:
			errs = append(errs, ValidationError{field + ".protocol", "must be responses or chat"})
		}
		if p.BaseURL == "" {
			errs = append(errs, ValidationError{field + ".base_url", "required"})
		}
		if p.APIKeyEnv == "" {
			errs = append(errs, ValidationError{field + ".api_key_env", "required"})
		}
		if p.Slots < 0 {
			errs = append(errs, ValidationError{field + ".slots", "must be >= 0"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// EffectiveSlots returns the slot width for a provider, defaulting to 1.
func (p ProviderConfig) EffectiveSlots() int {
	if p.Slots > 0 {
		return p.Slots
	}
	return 1
}
