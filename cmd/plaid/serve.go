package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plaidhost/plaid/internal/application"
)

var (
	configDir        string
	secretsFile      string
	secretsEnvPrefix string
)

// serveCmd boots the host and runs it until an interrupt or fatal error,
// mapping the result onto spec.md §6's exit-code contract.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot Plaid and run until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := application.Boot(ctx, configDir, secretsFile, secretsEnvPrefix)
		if err != nil {
			slog.Error("boot failed", "error", err)
			os.Exit(1)
		}
		reconfigureLogging(engine)

		if err := runEngine(ctx, engine); err != nil {
			slog.Error("fatal runtime error", "error", err)
			os.Exit(2)
		}
		return nil
	},
}

// runEngine recovers a panic from Engine.Run into an error rather than
// letting it crash the process uncaught, so serveCmd can map it to exit
// code 2 (spec.md §6: "fatal runtime panic").
func runEngine(ctx context.Context, engine *application.Engine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return engine.Run(ctx)
}

func reconfigureLogging(engine *application.Engine) {
	if verbose {
		return
	}
	cfg := engine.LoggingConfig()
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	serveCmd.Flags().StringVar(&configDir, "config-dir", "config", "directory containing webhooks/loading/apis/data/storage/cache/logging/executor TOML files")
	serveCmd.Flags().StringVar(&secretsFile, "secrets-file", "secrets.toml", "path to the secrets TOML file")
	serveCmd.Flags().StringVar(&secretsEnvPrefix, "secrets-env-prefix", "PLAID_SECRET_", "environment variable prefix that overrides individual secrets")
	rootCmd.AddCommand(serveCmd)
}
