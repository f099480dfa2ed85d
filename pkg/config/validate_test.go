package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{
		DefaultProvider: "open_router",
		Providers: map[string]ProviderConfig{
			"open_router": {
				BaseURL:      "https://openrouter.ai/api/v1",
				APIKey:       "sk-or-abc",
				DefaultModel: "qwen/qwen3-coder",
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() = %v on valid config", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Logging.Level = "loud"
	p := cfg.Providers["open_router"]
	p.APIKey = ""
	p.BaseURL = "not a url"
	cfg.Providers["open_router"] = p

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("error type %T, want ValidationError", err)
	}
	if len(verr.Errors) < 4 {
		t.Errorf("collected %d errors, want at least 4: %v", len(verr.Errors), verr)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
		field  string
	}{
		{
			name:   "missing api key",
			mutate: func(cfg *Config) { p := cfg.Providers["open_router"]; p.APIKey = ""; cfg.Providers["open_router"] = p },
			field:  "providers.open_router.api_key",
		},
		{
			name: "relative base url",
			mutate: func(cfg *Config) {
				p := cfg.Providers["open_router"]
				p.BaseURL = "/v1"
				cfg.Providers["open_router"] = p
			},
			field: "providers.open_router.base_url",
		},
		{
			name: "missing default model",
			mutate: func(cfg *Config) {
				p := cfg.Providers["open_router"]
				p.DefaultModel = ""
				cfg.Providers["open_router"] = p
			},
			field: "providers.open_router.default_model",
		},
		{
			name: "unknown auth style",
			mutate: func(cfg *Config) {
				p := cfg.Providers["open_router"]
				p.AuthStyle = "mtls"
				cfg.Providers["open_router"] = p
			},
			field: "providers.open_router.auth_style",
		},
		{
			name: "negative capacity",
			mutate: func(cfg *Config) {
				p := cfg.Providers["open_router"]
				p.Capacity = -1
				cfg.Providers["open_router"] = p
			},
			field: "providers.open_router.capacity",
		},
		{
			name:   "unknown default provider",
			mutate: func(cfg *Config) { cfg.DefaultProvider = "vertex_ai" },
			field:  "default_provider",
		},
		{
			name:   "alias to unknown provider",
			mutate: func(cfg *Config) { cfg.ModelAliases = map[string]string{"claude-sonnet-4": "nvidia_nim"} },
			field:  "model_aliases.claude-sonnet-4",
		},
		{
			name:   "unknown persistence backend",
			mutate: func(cfg *Config) { cfg.Persistence.Backend = "redis" },
			field:  "persistence.backend",
		},
		{
			name:   "invalid cron schedule",
			mutate: func(cfg *Config) { cfg.Persistence.Schedule = "every day at noon" },
			field:  "persistence.schedule",
		},
		{
			name:   "telegram enabled without token",
			mutate: func(cfg *Config) { cfg.Messaging.Telegram.Enabled = true },
			field:  "messaging.telegram.token",
		},
		{
			name:   "discord enabled without token",
			mutate: func(cfg *Config) { cfg.Messaging.Discord.Enabled = true },
			field:  "messaging.discord.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}
}

func TestValidateLMStudioKeyless(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"lmstudio": {
				BaseURL:      "http://localhost:1234/v1",
				DefaultModel: "local-model",
			},
		},
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() = %v, lmstudio must not require a key", err)
	}
}

func TestValidateNoProviders(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "at least one provider") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			"lmstudio": {BaseURL: "http://localhost:1234/v1", DefaultModel: "m"},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Metrics.Path != "/metrics" || cfg.Metrics.Namespace != "relay" {
		t.Errorf("metrics defaults = %q/%q", cfg.Metrics.Path, cfg.Metrics.Namespace)
	}
	if p := cfg.Providers["lmstudio"]; p.Capacity != 60 || p.Window != time.Minute {
		t.Errorf("rate defaults = %d/%v", p.Capacity, p.Window)
	}
	if cfg.Persistence.Backend != "file" || cfg.Persistence.Path == "" {
		t.Errorf("persistence defaults = %q/%q", cfg.Persistence.Backend, cfg.Persistence.Path)
	}
}
