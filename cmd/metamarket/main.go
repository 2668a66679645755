// Command metamarket runs the MetaMarket backend: the HTTP/WebSocket API in
// serve mode, the chain sync loops in sync mode, or both in full mode.
//
//	metamarket -config config.toml [-mode serve|sync|full]
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kunalatmosoft/MetaMarket/internal/app"
	"github.com/kunalatmosoft/MetaMarket/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", envOr("METAMARKET_CONFIG", "config.toml"), "path to the TOML configuration file")
	mode := flag.String("mode", "", "override the configured mode (serve, sync or full)")
	flag.Parse()

	// The level is raised or lowered once the config is known.
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		logger.Warn("unknown log level, using info", slog.String("log_level", cfg.LogLevel))
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("metamarket starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("metamarket exited with error", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("metamarket stopped")
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
