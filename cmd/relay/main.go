// Relay is an Anthropic-compatible gateway for OpenAI-style chat backends.
//
// It exposes POST /v1/messages and translates requests and SSE streams to
// the chat-completions dialect of the configured upstream (NVIDIA NIM,
// OpenRouter, LM Studio, or Vertex AI). Optional Telegram and Discord
// front-ends queue chat messages onto per-conversation trees.
//
// Usage:
//
//	# Start the gateway with the default configuration
//	relay run
//
//	# Start with a custom configuration file
//	relay run --config /etc/relay/config.yaml
//
//	# Validate a configuration file
//	relay validate
//
//	# Show version information
//	relay version
package main

func main() {
	Execute()
}
