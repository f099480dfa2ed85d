// Package telemetry exposes Prometheus metrics for the relay: upstream
// request outcomes and latency, token throughput, rate-limit pauses, and
// conversation queue depth.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request status label values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Collector owns the relay's metric instruments and the registry they are
// registered with.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec

	rateLimitBlocks prometheus.Counter
	rateLimitPause  prometheus.Histogram

	queueDepth  prometheus.Gauge
	activeTasks prometheus.Gauge
}

// NewCollector creates and registers the relay's metrics. A nil registry
// gets a fresh one, keeping tests isolated from the default registry.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "relay"
	}

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total upstream requests by provider, model and status",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider", "model", "mode"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens processed by provider, model and direction",
			},
			[]string{"provider", "model", "type"},
		),

		rateLimitBlocks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_blocks_total",
				Help:      "Upstream 429 responses that paused all traffic",
			},
		),

		rateLimitPause: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_pause_seconds",
				Help:      "Time spent waiting for a rate-limit slot",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tree_queue_depth",
				Help:      "Pending nodes across all conversation trees",
			},
		),

		activeTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tree_active_tasks",
				Help:      "Conversation trees with a node in progress",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.tokensTotal,
		c.rateLimitBlocks,
		c.rateLimitPause,
		c.queueDepth,
		c.activeTasks,
	)

	return c
}

// RecordRequest records one finished upstream request. Mode is "stream" or
// "sync".
func (c *Collector) RecordRequest(provider, model, status, mode string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model, mode).Observe(duration.Seconds())
}

// RecordTokens records prompt and completion token counts.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordRateLimitBlock counts an upstream 429 that blocked all traffic.
func (c *Collector) RecordRateLimitBlock() {
	c.rateLimitBlocks.Inc()
}

// RecordRateLimitPause records how long one request waited for its slot.
func (c *Collector) RecordRateLimitPause(d time.Duration) {
	c.rateLimitPause.Observe(d.Seconds())
}

// SetQueueDepth publishes the current pending node count.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// SetActiveTasks publishes the current in-progress tree count.
func (c *Collector) SetActiveTasks(n int) {
	c.activeTasks.Set(float64(n))
}

// Handler returns the scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
