package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress     = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxBodyBytes      = 16 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "relay"

	DefaultRateCapacity = 60
	DefaultRateWindow   = time.Minute

	DefaultPersistenceBackend = "file"
	DefaultPersistencePath    = "data/conversations.json"
)

// ApplyDefaults fills unset fields with sensible defaults. Called by
// LoadConfig after parsing and before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	for name, p := range cfg.Providers {
		if p.Capacity == 0 {
			p.Capacity = DefaultRateCapacity
		}
		if p.Window == 0 {
			p.Window = DefaultRateWindow
		}
		cfg.Providers[name] = p
	}

	// A single configured provider is the default without saying so.
	if cfg.DefaultProvider == "" && len(cfg.Providers) == 1 {
		for name := range cfg.Providers {
			cfg.DefaultProvider = name
		}
	}

	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = DefaultPersistenceBackend
	}
	if cfg.Persistence.Path == "" && cfg.Persistence.Backend != "none" {
		cfg.Persistence.Path = DefaultPersistencePath
	}
}
