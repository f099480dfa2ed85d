package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, expands ${ENV_VAR}
// references in secret fields, applies defaults, and validates. Environment
// variable overrides are not applied; use LoadConfigWithEnvOverrides for
// that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	expandSecrets(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and then
// applies environment variable overrides named RELAY_SECTION_FIELD (e.g.
// RELAY_SERVER_LISTEN_ADDRESS). Environment variables always win over the
// file.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Expand ${ENV_VAR} secrets, apply defaults
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// expandSecrets resolves ${ENV_VAR} references in credential fields so keys
// never have to live in the YAML file itself.
func expandSecrets(cfg *Config) {
	for name, p := range cfg.Providers {
		p.APIKey = expandEnvRef(p.APIKey)
		cfg.Providers[name] = p
	}
	cfg.Messaging.Telegram.Token = expandEnvRef(cfg.Messaging.Telegram.Token)
	cfg.Messaging.Discord.Token = expandEnvRef(cfg.Messaging.Discord.Token)
}

func expandEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("RELAY_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("RELAY_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	if val := os.Getenv("RELAY_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("RELAY_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("RELAY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}

	if val := os.Getenv("RELAY_DEFAULT_PROVIDER"); val != "" {
		cfg.DefaultProvider = val
	}
	for name := range cfg.Providers {
		applyProviderEnvOverrides(cfg, name)
	}

	if val := os.Getenv("RELAY_PERSISTENCE_BACKEND"); val != "" {
		cfg.Persistence.Backend = val
	}
	if val := os.Getenv("RELAY_PERSISTENCE_PATH"); val != "" {
		cfg.Persistence.Path = val
	}
	if val := os.Getenv("RELAY_PERSISTENCE_SCHEDULE"); val != "" {
		cfg.Persistence.Schedule = val
	}

	if val := os.Getenv("RELAY_TELEGRAM_TOKEN"); val != "" {
		cfg.Messaging.Telegram.Token = val
	}
	if val := os.Getenv("RELAY_DISCORD_TOKEN"); val != "" {
		cfg.Messaging.Discord.Token = val
	}
}

// applyProviderEnvOverrides applies RELAY_PROVIDERS_<NAME>_<FIELD> overrides
// for one provider, NAME uppercased.
func applyProviderEnvOverrides(cfg *Config, name string) {
	p := cfg.Providers[name]
	prefix := fmt.Sprintf("RELAY_PROVIDERS_%s_", strings.ToUpper(name))

	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		p.BaseURL = val
	}
	if val := os.Getenv(prefix + "API_KEY"); val != "" {
		p.APIKey = val
	}
	if val := os.Getenv(prefix + "DEFAULT_MODEL"); val != "" {
		p.DefaultModel = val
	}
	if val := os.Getenv(prefix + "CAPACITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			p.Capacity = i
		}
	}
	if val := os.Getenv(prefix + "WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			p.Window = d
		}
	}
	if val := os.Getenv(prefix + "READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			p.ReadTimeout = d
		}
	}

	cfg.Providers[name] = p
}
