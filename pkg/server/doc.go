// Package server is the HTTP gateway surface of the relay.
//
// It exposes the Anthropic-shaped API (POST /v1/messages, both streaming
// SSE and buffered JSON, plus POST /v1/messages/count_tokens), a liveness
// probe, and the Prometheus scrape endpoint. Incoming model labels are
// resolved to a provider through the configured alias table before the
// request reaches an adapter.
//
// Requests pass through request-id, logging, and panic-recovery middleware.
// Failures map to Anthropic error envelopes: before any SSE output as an
// HTTP error response, afterwards as a terminal "error" event in-stream.
package server
