package providers

import "time"

// Provider name constants. Every provider speaks the OpenAI chat-completion
// shape; they differ only in endpoint, auth style, and sampler defaults.
const (
	ProviderNvidiaNIM  = "nvidia_nim"
	ProviderOpenRouter = "open_router"
	ProviderLMStudio   = "lmstudio"
	ProviderVertexAI   = "vertex_ai"
)

// Auth styles for upstream requests.
const (
	// AuthBearer sends the key as "Authorization: Bearer <key>".
	AuthBearer = "bearer"
	// AuthQueryKey appends the key as a "?key=" query parameter (Vertex).
	AuthQueryKey = "query_key"
)

// Config contains everything an adapter needs to talk to one upstream.
type Config struct {
	// Name is the provider identifier (nvidia_nim, open_router, …).
	Name string

	// BaseURL is the API endpoint base URL; the adapter POSTs to
	// BaseURL + "/chat/completions".
	BaseURL string

	// APIKey is the authentication key.
	APIKey string

	// AuthStyle selects how APIKey is attached (AuthBearer default).
	AuthStyle string

	// DefaultModel is the provider-facing model identifier substituted for
	// the caller's model label.
	DefaultModel string

	// ConnectTimeout bounds TCP/TLS establishment. Short by default.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the gap between response bytes. Long by default to
	// tolerate slow reasoning streams.
	ReadTimeout time.Duration

	// WriteTimeout bounds request body transmission.
	WriteTimeout time.Duration

	// MaxIdleConns / MaxIdleConnsPerHost / IdleConnTimeout configure the
	// connection pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// RecoverInlineToolCalls opts in to heuristic recovery of tool calls
	// the model emitted as inline text.
	RecoverInlineToolCalls bool

	// Sampler holds the provider's default sampling parameters.
	Sampler SamplerSettings
}

// SamplerSettings are the provider defaults applied to an outbound request
// body when the caller did not set the corresponding field. Pointer fields
// distinguish "absent" from a zero value; a TopK of zero or TopKUnset is
// not sent.
type SamplerSettings struct {
	Temperature       *float64 `yaml:"temperature"`
	TopP              *float64 `yaml:"top_p"`
	TopK              int      `yaml:"top_k"`
	MaxTokens         int      `yaml:"max_tokens"`
	PresencePenalty   *float64 `yaml:"presence_penalty"`
	FrequencyPenalty  *float64 `yaml:"frequency_penalty"`
	MinP              *float64 `yaml:"min_p"`
	RepetitionPenalty *float64 `yaml:"repetition_penalty"`
	Seed              *int     `yaml:"seed"`
	Stop              string   `yaml:"stop"`
	ParallelToolCalls *bool    `yaml:"parallel_tool_calls"`
	ReasoningEffort   string   `yaml:"reasoning_effort"`
	IncludeReasoning  *bool    `yaml:"include_reasoning"`
}

// TopKUnset is the ignore value for SamplerSettings.TopK.
const TopKUnset = -1

// Default timeouts, applied when config leaves them zero.
const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultReadTimeout     = 300 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultMaxIdleConns    = 100
	DefaultMaxIdlePerHost  = 10
)

// ApplyDefaults fills zero-valued connection settings.
func (c *Config) ApplyDefaults() {
	if c.AuthStyle == "" {
		c.AuthStyle = AuthBearer
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = DefaultMaxIdlePerHost
	}
}
