package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkazansky/dialogd/internal/app"
	"github.com/mkazansky/dialogd/internal/config"
	"github.com/mkazansky/dialogd/internal/log"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: alongside the binary)")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		natsURL    = flag.String("nats-url", "", "NATS server URL for multi-process fan-out (overrides config)")
		logLevel   = flag.String("log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	)
	flag.Parse()

	bootLogger := log.New("info")

	cfg, resolvedPath, err := config.Load(bootLogger, *configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", resolvedPath).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *natsURL != "" {
		cfg.NATSURL = *natsURL
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	logger.Info().Str("addr", cfg.Addr).Str("config", resolvedPath).Msg("starting dialogd server")
	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
