package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"lumen-hq/relay/pkg/providers"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "providers.vertex_ai.base_url").
	Field string

	// Message is a human-readable error message.
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every validation failure found in a config.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validBackends = map[string]bool{"file": true, "sqlite": true, "none": true}

// Validate checks the whole configuration, collecting every failure rather
// than stopping at the first.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateAliases(cfg)...)
	errs = append(errs, validatePersistence(&cfg.Persistence)...)
	errs = append(errs, validateMessaging(&cfg.Messaging)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "listen address is required"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{"server.max_body_bytes", "must not be negative"})
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError
	if !validLogLevels[cfg.Level] {
		errs = append(errs, FieldError{"logging.level", fmt.Sprintf("unknown level %q (debug, info, warn, error)", cfg.Level)})
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		errs = append(errs, FieldError{"logging.format", fmt.Sprintf("unknown format %q (json, text)", cfg.Format)})
	}
	return errs
}

func validateProviders(cfg *Config) []FieldError {
	var errs []FieldError

	if len(cfg.Providers) == 0 {
		errs = append(errs, FieldError{"providers", "at least one provider must be configured"})
		return errs
	}

	for name, p := range cfg.Providers {
		field := func(f string) string { return fmt.Sprintf("providers.%s.%s", name, f) }

		if p.BaseURL == "" {
			errs = append(errs, FieldError{field("base_url"), "base URL is required"})
		} else if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{field("base_url"), fmt.Sprintf("invalid URL %q", p.BaseURL)})
		}

		// Local lmstudio runs without a key; every hosted upstream needs one.
		if p.APIKey == "" && name != providers.ProviderLMStudio {
			errs = append(errs, FieldError{field("api_key"), "API key is required"})
		}
		if p.AuthStyle != "" && p.AuthStyle != providers.AuthBearer && p.AuthStyle != providers.AuthQueryKey {
			errs = append(errs, FieldError{field("auth_style"), fmt.Sprintf("unknown auth style %q", p.AuthStyle)})
		}
		if p.DefaultModel == "" {
			errs = append(errs, FieldError{field("default_model"), "default model is required"})
		}
		if p.Capacity < 0 {
			errs = append(errs, FieldError{field("capacity"), "must not be negative"})
		}
		if p.Window < 0 {
			errs = append(errs, FieldError{field("window"), "must not be negative"})
		}
	}

	if cfg.DefaultProvider == "" {
		errs = append(errs, FieldError{"default_provider", "required when more than one provider is configured"})
	} else if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
		errs = append(errs, FieldError{"default_provider", fmt.Sprintf("provider %q is not configured", cfg.DefaultProvider)})
	}

	return errs
}

func validateAliases(cfg *Config) []FieldError {
	var errs []FieldError
	for alias, provider := range cfg.ModelAliases {
		if _, ok := cfg.Providers[provider]; !ok {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("model_aliases.%s", alias),
				Message: fmt.Sprintf("provider %q is not configured", provider),
			})
		}
	}
	return errs
}

func validatePersistence(cfg *PersistenceConfig) []FieldError {
	var errs []FieldError
	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{"persistence.backend", fmt.Sprintf("unknown backend %q (file, sqlite, none)", cfg.Backend)})
	}
	if cfg.Backend != "none" && cfg.Path == "" {
		errs = append(errs, FieldError{"persistence.path", "path is required"})
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{"persistence.schedule", fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err)})
		}
	}
	return errs
}

func validateMessaging(cfg *MessagingConfig) []FieldError {
	var errs []FieldError
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, FieldError{"messaging.telegram.token", "token is required when telegram is enabled"})
	}
	if cfg.Discord.Enabled && cfg.Discord.Token == "" {
		errs = append(errs, FieldError{"messaging.discord.token", "token is required when discord is enabled"})
	}
	return errs
}
