// Package config loads, validates, and watches the relay's YAML
// configuration.
//
// Loading layers file contents, ${ENV_VAR} secret expansion, defaults, and
// RELAY_* environment overrides, then validates the result as a whole. A
// process-wide singleton holds the active configuration; the fsnotify-based
// Watcher hot-swaps it when the file changes, keeping the old configuration
// on any reload failure.
package config
