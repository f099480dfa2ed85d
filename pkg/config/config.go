package config

import (
	"sort"
	"time"

	"lumen-hq/relay/pkg/providers"
)

// Config is the root configuration for the relay.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Logging configures the slog handler installed at startup.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Providers maps provider name to its upstream settings.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// DefaultProvider receives requests whose model resolves to no alias.
	// Defaults to the only configured provider when there is exactly one.
	DefaultProvider string `yaml:"default_provider"`

	// ModelAliases maps incoming model labels to provider names. The
	// provider's default_model replaces the label on the outbound request.
	ModelAliases map[string]string `yaml:"model_aliases"`

	// Persistence configures conversation snapshots.
	Persistence PersistenceConfig `yaml:"persistence"`

	// Messaging configures the chat front ends.
	Messaging MessagingConfig `yaml:"messaging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the host:port to bind (default ":8080").
	ListenAddress string `yaml:"listen_address"`

	// ReadHeaderTimeout bounds request header reads.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout bounds keep-alive connections.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps the request body (default 16 MiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the scrape endpoint (default "/metrics").
	Path string `yaml:"path"`

	// Namespace prefixes every metric name (default "relay").
	Namespace string `yaml:"namespace"`
}

// ProviderConfig holds one upstream's settings. The zero duration fields
// fall back to the adapter defaults.
type ProviderConfig struct {
	// BaseURL is the chat-completions API base (without the
	// "/chat/completions" suffix).
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the upstream. Required for every
	// provider except lmstudio. Supports ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key"`

	// AuthStyle is "bearer" (default) or "query_key".
	AuthStyle string `yaml:"auth_style"`

	// DefaultModel replaces the caller's model label on outbound requests.
	DefaultModel string `yaml:"default_model"`

	// Capacity and Window feed the global rate-limit coordinator when this
	// provider is the default.
	Capacity int           `yaml:"capacity"`
	Window   time.Duration `yaml:"window"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`

	// RecoverInlineToolCalls opts in to heuristic recovery of tool calls
	// emitted as plain text.
	RecoverInlineToolCalls bool `yaml:"recover_inline_tool_calls"`

	// Sampler holds default sampling parameters merged into outbound
	// bodies when the request leaves them unset.
	Sampler providers.SamplerSettings `yaml:"sampler"`
}

// PersistenceConfig selects and configures the snapshot store.
type PersistenceConfig struct {
	// Backend is "file", "sqlite", or "none".
	Backend string `yaml:"backend"`

	// Path is the snapshot file or SQLite database path.
	Path string `yaml:"path"`

	// Schedule is a cron expression for periodic snapshots; empty disables
	// the scheduler (a final snapshot is still written at shutdown).
	Schedule string `yaml:"schedule"`
}

// MessagingConfig holds chat front-end settings.
type MessagingConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig holds the Telegram bot settings.
type TelegramConfig struct {
	Enabled bool `yaml:"enabled"`

	// Token is the bot API token. Supports ${ENV_VAR} expansion.
	Token string `yaml:"token"`
}

// DiscordConfig holds the Discord bot settings.
type DiscordConfig struct {
	Enabled bool `yaml:"enabled"`

	// Token is the bot token. Supports ${ENV_VAR} expansion.
	Token string `yaml:"token"`
}

// ProviderConfigs converts the map into adapter configs, sorted by name so
// registry construction is deterministic.
func (c *Config) ProviderConfigs() []providers.Config {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]providers.Config, 0, len(names))
	for _, name := range names {
		p := c.Providers[name]
		out = append(out, providers.Config{
			Name:                   name,
			BaseURL:                p.BaseURL,
			APIKey:                 p.APIKey,
			AuthStyle:              p.AuthStyle,
			DefaultModel:           p.DefaultModel,
			ConnectTimeout:         p.ConnectTimeout,
			ReadTimeout:            p.ReadTimeout,
			WriteTimeout:           p.WriteTimeout,
			RecoverInlineToolCalls: p.RecoverInlineToolCalls,
			Sampler:                p.Sampler,
		})
	}
	return out
}

// ResolveProvider maps an incoming model label to a provider name via the
// alias table, falling back to the default provider. The second return is
// false when neither matches a configured provider.
func (c *Config) ResolveProvider(model string) (string, bool) {
	if name, ok := c.ModelAliases[model]; ok {
		if _, configured := c.Providers[name]; configured {
			return name, true
		}
		return name, false
	}
	if c.DefaultProvider != "" {
		_, configured := c.Providers[c.DefaultProvider]
		return c.DefaultProvider, configured
	}
	return "", false
}

// RateLimit returns the capacity and window the global coordinator should
// run with: the default provider's settings.
func (c *Config) RateLimit() (requests int, window time.Duration) {
	p, ok := c.Providers[c.DefaultProvider]
	if !ok {
		return 0, 0
	}
	return p.Capacity, p.Window
}
