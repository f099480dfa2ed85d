package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lumen-hq/relay/pkg/cli"
	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/messaging"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/ratelimit"
	"lumen-hq/relay/pkg/server"
	"lumen-hq/relay/pkg/telemetry"
	"lumen-hq/relay/pkg/trees"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay gateway",
	Long: `Start the relay gateway with the specified configuration.

The server exposes POST /v1/messages and translates each request to the
chat-completions dialect of its upstream provider. Telegram and Discord
front-ends start alongside the HTTP server when enabled.

Examples:
  # Start with default config
  relay run

  # Start with custom config
  relay run --config /etc/relay/config.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8080

  # Reload config when the file changes
  relay run --watch

  # Validate config without starting the server
  relay run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload configuration on file change")
}

func runServer(cmd *cobra.Command, args []string) error {
	// A missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("Configuration valid")
		return nil
	}

	// The global coordinator carries the default provider's request budget;
	// every adapter shares it.
	requests, window := cfg.RateLimit()
	limiter := ratelimit.Configure(requests, window)
	logger.Info("rate limit configured", "requests", requests, "window", window)

	var metrics *telemetry.Collector
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewCollector(cfg.Metrics.Namespace, nil)
	}

	registry, err := providers.NewRegistry(cfg.ProviderConfigs(), cfg.DefaultProvider,
		limiter, metrics, logger)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("initializing providers: %w", err))
	}
	logger.Info("providers initialized",
		"providers", registry.Names(), "default", cfg.DefaultProvider)

	ctx := cli.SetupSignalHandler()

	// Messaging front-ends and the conversation manager only exist when at
	// least one platform is enabled.
	var (
		svc       *messaging.Service
		store     trees.Store
		scheduler *trees.SnapshotScheduler
	)
	if cfg.Messaging.Telegram.Enabled || cfg.Messaging.Discord.Enabled {
		svc = messaging.NewService(registry, metrics, logger)

		if cfg.Messaging.Telegram.Enabled {
			telegram, err := messaging.NewTelegramPlatform(cfg.Messaging.Telegram.Token, logger)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			svc.RegisterPlatform(telegram)
		}
		if cfg.Messaging.Discord.Enabled {
			discord, err := messaging.NewDiscordPlatform(cfg.Messaging.Discord.Token, logger)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			svc.RegisterPlatform(discord)
		}

		store, err = openStore(cfg.Persistence)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		if store != nil {
			snap, err := store.Load()
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("loading conversation snapshot: %w", err))
			}
			svc.Manager().Restore(snap)

			scheduler = trees.NewSnapshotScheduler(svc.Manager(), store, logger)
			if err := scheduler.Start(cfg.Persistence.Schedule); err != nil {
				return cli.NewCommandError("run", err)
			}
		}

		svc.Start(ctx)
	}

	var watcher *config.Watcher
	if runFlags.watch {
		watcher, err = config.NewWatcher(cfgFile, 0, logger)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("starting config watcher: %w", err))
		}
		// Address and provider set changes need a restart; the reload picks
		// up alias, budget, and logging edits.
		err = watcher.Watch(ctx, func(updated *config.Config) {
			requests, window := updated.RateLimit()
			ratelimit.Configure(requests, window)
			logger.Info("configuration reloaded", "requests", requests, "window", window)
		})
		if err != nil {
			return cli.NewCommandError("run", err)
		}
	}

	srv := server.NewServer(cfg, registry, metrics, logger)
	logger.Info("starting gateway", "address", cfg.Server.ListenAddress)
	serveErr := srv.Start(ctx)

	// Shutdown order: stop taking platform messages and wait for in-flight
	// jobs, then write the final snapshot.
	if watcher != nil {
		watcher.Stop()
	}
	if svc != nil {
		svc.Stop()
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if store != nil {
		store.Close()
	}

	if serveErr != nil {
		return cli.NewCommandError("run", serveErr)
	}
	logger.Info("gateway stopped")
	return nil
}

// openStore builds the configured persistence backend; "none" disables it.
func openStore(cfg config.PersistenceConfig) (trees.Store, error) {
	switch cfg.Backend {
	case "file":
		return trees.NewFileStore(cfg.Path)
	case "sqlite":
		return trees.NewSQLiteStore(cfg.Path)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported persistence backend: %s", cfg.Backend)
	}
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
