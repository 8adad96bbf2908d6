package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/neonatal/internal/config"
	"github.com/ehr/neonatal/internal/domain/patient"
	"github.com/ehr/neonatal/internal/platform/backup"
	"github.com/ehr/neonatal/internal/platform/db"
	"github.com/ehr/neonatal/internal/platform/httpjson"
	"github.com/ehr/neonatal/internal/platform/middleware"
)

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)

	// Store
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	store, pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open patient store")
	}
	defer store.Close()

	svc, err := newService(cfg, store, patient.NewLogNotifier(logger), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build patient service")
	}

	// Scheduled backups of the local store
	if cfg.BackupSchedule != "" {
		if snap, ok := store.(backup.Snapshotter); ok {
			sched := backup.NewScheduler(snap, cfg.BackupDir, cfg.BackupRetain, logger)
			if err := sched.Start(ctx, cfg.BackupSchedule); err != nil {
				logger.Fatal().Err(err).Msg("failed to start backup scheduler")
			}
			defer sched.Stop()
		}
	}

	e := newServer(cfg, store, pool, svc, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("driver", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the middleware stack and routes.
// pool may be nil.
func newServer(cfg *config.Config, store patient.Store, pool *pgxpool.Pool, svc *patient.Service, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = httpjson.Serializer{}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	patient.NewHandler(svc).RegisterRoutes(apiV1)

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/health/store", db.HealthHandler(store, cfg.StoreDriver, pool))

	return e
}
