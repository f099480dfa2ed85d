// Package providers adapts OpenAI-compatible upstream endpoints to the
// Anthropic messages surface.
//
// An Adapter owns one upstream: it builds chat-completion bodies from
// Anthropic requests, performs the HTTP exchange over a pooled client, and
// translates responses back, both as a whole message and as a live
// Anthropic event stream. Reasoning arrives either as structured fields or
// as inline <think> sections; both surface as thinking blocks. Providers
// whose models narrate tool calls as text can opt into inline recovery,
// which reconstructs structured tool_use blocks from recognized patterns.
//
// All upstream failures map onto a small typed error set; HTTPStatus and
// Kind translate any of them into a client-facing status and error type.
package providers
