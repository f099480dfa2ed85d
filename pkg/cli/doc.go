// Package cli holds shared helpers for the relay command line: typed
// command errors, output formatting, and signal handling.
package cli
