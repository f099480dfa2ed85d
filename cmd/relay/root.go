package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - Anthropic-compatible gateway for OpenAI-style backends",
	Long: `Relay is an HTTP gateway that speaks the Anthropic Messages API on the
front and OpenAI chat completions on the back.

It provides:
  - POST /v1/messages with full SSE streaming translation
  - Multiple upstream providers (NVIDIA NIM, OpenRouter, LM Studio, Vertex AI)
  - A global rate-limit coordinator shared by all requests
  - Telegram and Discord front-ends with per-conversation queues
  - Prometheus metrics and conversation persistence`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
