package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/campuslms/chatcore/internal/auth"
	"github.com/campuslms/chatcore/internal/config"
	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/scheduler"
	"github.com/campuslms/chatcore/internal/store/sqlite"
	transporthttp "github.com/campuslms/chatcore/internal/transport/http"
)

const optimizeInterval = time.Hour

// App wires together core and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *sqlite.SQLiteStore
	scheduler       *scheduler.Scheduler
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, JWTConfig(cfg))

	hub := core.NewHub(st, HubConfig(cfg.Chat), logger)
	server := transporthttp.NewServer(hub, authService, st, cfg, logger)

	sched, err := scheduler.New(logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := registerMaintenance(sched, hub, st, cfg.Maintenance, logger); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		scheduler:       sched,
		log:             logger,
	}, nil
}

// JWTConfig derives token settings from cfg.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
}

// HubConfig maps chat settings onto the hub.
func HubConfig(chat config.ChatConfig) core.Config {
	return core.Config{
		MaxMessageLength: chat.MaxMessageLength,
		RateLimitWindow:  chat.RateLimitWindow,
		RateLimitMax:     chat.RateLimitMax,
		TypingTimeout:    chat.TypingTimeout,
		BannedWords:      chat.BannedWords,
		MaskRune:         chat.Mask(),
	}
}

func registerMaintenance(s *scheduler.Scheduler, hub *core.Hub, st *sqlite.SQLiteStore, cfg config.MaintenanceConfig, logger *zerolog.Logger) error {
	if err := s.Every("rate-limit-sweep", cfg.SweepInterval, func() {
		if removed := hub.Limiter().Sweep(); removed > 0 {
			logger.Debug().Int("removed", removed).Msg("swept rate limit entries")
		}
	}); err != nil {
		return err
	}

	return s.Every("sqlite-optimize", optimizeInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := st.Optimize(ctx); err != nil {
			logger.Warn().Err(err).Msg("sqlite optimize failed")
		}
	})
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.scheduler.Start()

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.cleanup()
	return err
}

// cleanup stops background jobs and closes the database.
func (a *App) cleanup() {
	if err := a.scheduler.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("failed to stop scheduler")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
