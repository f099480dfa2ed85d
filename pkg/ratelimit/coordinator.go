// Package ratelimit coordinates upstream request pacing across every caller
// in the process.
//
// Two mechanisms compose. A proactive token bucket smooths request volume to
// at most N requests per sliding window. A reactive block gate halts all
// traffic once the upstream answers 429, until the advertised retry horizon
// passes. Both are process-global: a single rate-limited conversation must
// pause unrelated conversations too, because the upstream limit is keyed to
// the deployment, not the caller.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied when a coordinator is built without explicit settings.
const (
	DefaultRequests = 60
	DefaultWindow   = time.Minute

	// DefaultBlockDuration is the reactive pause applied on a 429 that
	// carries no usable retry hint.
	DefaultBlockDuration = 60 * time.Second
)

// Coordinator gates outbound upstream requests. All methods are safe for
// concurrent use.
type Coordinator struct {
	limiter *rate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time

	now func() time.Time
}

// New builds a coordinator admitting at most requests per window, with burst
// capacity equal to the full window allowance. Non-positive arguments fall
// back to the defaults.
func New(requests int, window time.Duration) *Coordinator {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coordinator{
		limiter: rate.NewLimiter(rate.Limit(float64(requests)/window.Seconds()), requests),
		now:     time.Now,
	}
}

// Acquire blocks until the caller may send one upstream request. It first
// waits out any reactive block, then takes a token from the proactive
// bucket. Returns the context's error if cancelled while waiting.
func (c *Coordinator) Acquire(ctx context.Context) error {
	for {
		wait := c.RemainingBlock()
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// Re-check: another caller may have pushed the horizon further out
		// while this one slept.
	}
	return c.limiter.Wait(ctx)
}

// SetBlocked records an upstream-imposed pause of d from now. The horizon
// only moves forward: a shorter pause never shortens one already in force.
func (c *Coordinator) SetBlocked(d time.Duration) {
	if d <= 0 {
		d = DefaultBlockDuration
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if until.After(c.blockedUntil) {
		c.blockedUntil = until
	}
}

// IsBlocked reports whether a reactive block is currently in force.
func (c *Coordinator) IsBlocked() bool {
	return c.RemainingBlock() > 0
}

// RemainingBlock returns how long the reactive block has left, or zero.
func (c *Coordinator) RemainingBlock() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.blockedUntil.Sub(c.now()); wait > 0 {
		return wait
	}
	return 0
}

var (
	globalMu sync.Mutex
	global   *Coordinator
)

// Global returns the process-wide coordinator, building one with defaults on
// first use.
func Global() *Coordinator {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(DefaultRequests, DefaultWindow)
	}
	return global
}

// Configure replaces the process-wide coordinator with one using the given
// settings. Call once at startup, before traffic flows.
func Configure(requests int, window time.Duration) *Coordinator {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = New(requests, window)
	return global
}

// Reset discards the process-wide coordinator so the next Global call
// rebuilds it. Intended for tests.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}
