package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/auth"
	"github.com/mkazansky/dialogd/internal/config"
	"github.com/mkazansky/dialogd/internal/core"
	natsreg "github.com/mkazansky/dialogd/internal/registry/nats"
	"github.com/mkazansky/dialogd/internal/store"
	"github.com/mkazansky/dialogd/internal/store/sqlite"
	transporthttp "github.com/mkazansky/dialogd/internal/transport/http"
)

// App wires together the store, group registry, core services and the
// HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	natsRegistry    *natsreg.Registry
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	// An empty NATS URL keeps fan-out in-process; a configured URL
	// routes it through NATS so multiple server processes share groups.
	var registry core.Registry
	var natsRegistry *natsreg.Registry
	if cfg.NATSURL != "" {
		natsRegistry, err = natsreg.New(cfg.NATSURL, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		registry = natsRegistry
		logger.Info().Str("nats_url", cfg.NATSURL).Msg("using nats group registry")
	} else {
		registry = core.NewMemoryRegistry()
		logger.Info().Msg("using in-process group registry")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	chat := core.NewChatService(st, registry, logger, cfg.BackfillLimit)
	receipts := core.NewReceiptService(st, registry, logger)
	server := transporthttp.NewServer(chat, receipts, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		natsRegistry:    natsRegistry,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// a fatal server error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the registry connection and the database.
func (a *App) cleanup() {
	if a.natsRegistry != nil {
		if err := a.natsRegistry.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close nats registry")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
