package providers

import (
	"fmt"
	"log/slog"
	"sort"

	"lumen-hq/relay/pkg/ratelimit"
	"lumen-hq/relay/pkg/telemetry"
)

// Registry holds the configured upstream adapters and picks the one serving
// a request.
type Registry struct {
	adapters    map[string]*Adapter
	defaultName string
}

// NewRegistry builds an adapter per configuration entry. Every provider is
// validated up front: a provider that needs credentials and has none fails
// construction rather than the first request.
func NewRegistry(cfgs []Config, defaultName string, limiter *ratelimit.Coordinator, metrics *telemetry.Collector, logger *slog.Logger) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	adapters := make(map[string]*Adapter, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("provider entry missing name")
		}
		if _, dup := adapters[cfg.Name]; dup {
			return nil, fmt.Errorf("provider %q configured twice", cfg.Name)
		}
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %q missing base_url", cfg.Name)
		}
		if cfg.APIKey == "" && requiresAPIKey(cfg.Name) {
			return nil, fmt.Errorf("provider %q missing api_key", cfg.Name)
		}
		adapters[cfg.Name] = NewAdapter(cfg, limiter, metrics, logger)
	}

	if defaultName == "" {
		defaultName = cfgs[0].Name
	}
	if _, ok := adapters[defaultName]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", defaultName)
	}

	return &Registry{adapters: adapters, defaultName: defaultName}, nil
}

// requiresAPIKey reports whether a provider cannot run without credentials.
// Local inference servers accept unauthenticated requests.
func requiresAPIKey(name string) bool {
	return name != ProviderLMStudio
}

// Get returns the named adapter, or the default when name is empty.
func (r *Registry) Get(name string) (*Adapter, error) {
	if name == "" {
		name = r.defaultName
	}
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, &InvalidRequestError{
			Field:   "provider",
			Message: fmt.Sprintf("unknown provider %q", name),
		}
	}
	return adapter, nil
}

// Default returns the default adapter.
func (r *Registry) Default() *Adapter {
	return r.adapters[r.defaultName]
}

// Names lists the configured provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
