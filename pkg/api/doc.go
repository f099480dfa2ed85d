// Package api defines the Anthropic-shaped wire types accepted and produced
// by the gateway: the messages request with its role-tagged content blocks,
// the response envelope, streaming event payloads, and token-count estimation.
//
// The types are deliberately tolerant on ingress. Observed clients send
// `content` as either a plain string or a list of blocks, `system` as a
// string or a list of text blocks, and `thinking` as either {enabled: bool}
// or {type: "enabled"|"disabled"}; all forms decode into one canonical
// representation. Egress marshalling is strict and emits only the fields
// that belong to each block type.
package api
