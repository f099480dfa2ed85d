package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"lumen-hq/relay/pkg/cli"
	"lumen-hq/relay/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply environment overrides, and run every
validation check without starting the server.

Examples:
  # Validate the default config
  relay validate

  # Validate a specific file and print the resolved summary as JSON
  relay validate --config /etc/relay/config.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// configSummary is what validate prints: the resolved shape of the config
// without any secrets.
type configSummary struct {
	ListenAddress   string            `json:"listen_address"`
	DefaultProvider string            `json:"default_provider"`
	Providers       []string          `json:"providers"`
	ModelAliases    map[string]string `json:"model_aliases,omitempty"`
	Persistence     string            `json:"persistence"`
	Telegram        bool              `json:"telegram"`
	Discord         bool              `json:"discord"`
	Metrics         bool              `json:"metrics"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	summary := configSummary{
		ListenAddress:   cfg.Server.ListenAddress,
		DefaultProvider: cfg.DefaultProvider,
		Providers:       names,
		ModelAliases:    cfg.ModelAliases,
		Persistence:     cfg.Persistence.Backend,
		Telegram:        cfg.Messaging.Telegram.Enabled,
		Discord:         cfg.Messaging.Discord.Enabled,
		Metrics:         cfg.Metrics.Enabled,
	}

	if cli.OutputFormat(validateFlags.format) == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, summary)
	}

	fmt.Printf("Configuration valid: %s\n", cfgFile)
	fmt.Printf("  Listen address:   %s\n", summary.ListenAddress)
	fmt.Printf("  Default provider: %s\n", summary.DefaultProvider)
	fmt.Printf("  Providers:        %v\n", summary.Providers)
	fmt.Printf("  Persistence:      %s\n", summary.Persistence)
	fmt.Printf("  Telegram:         %v\n", summary.Telegram)
	fmt.Printf("  Discord:          %v\n", summary.Discord)
	fmt.Printf("  Metrics:          %v\n", summary.Metrics)
	return nil
}
