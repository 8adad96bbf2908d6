package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/neonatal/internal/config"
	"github.com/ehr/neonatal/internal/domain/patient"
	"github.com/ehr/neonatal/internal/platform/db"
	"github.com/ehr/neonatal/internal/platform/phi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "neonatal",
		Short:        "Newborn patient record service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(patientCmd())
	rootCmd.AddCommand(backupCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient record API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes JSON lines to w, or human readable lines in development.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// openStore opens the backend selected by STORE_DRIVER. The pool is non-nil
// only for postgres.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (patient.Store, *pgxpool.Pool, error) {
	enc, err := phi.FromHexKey(cfg.PHIEncryptionKey, logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []patient.StoreOption{
		patient.WithUniqueClinicalRecord(cfg.EnforceUniqueClinicalRecord),
		patient.WithEncryptor(enc),
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("connected to database")
		return patient.NewPGStore(pool, opts...), pool, nil
	default:
		store, err := patient.OpenBoltStore(cfg.StorePath, opts...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", cfg.StorePath).Msg("opened patient store")
		return store, nil, nil
	}
}

func newService(cfg *config.Config, store patient.Store, notifier patient.Notifier, logger zerolog.Logger) (*patient.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return patient.NewService(store,
		patient.WithLocation(loc),
		patient.WithNotifier(notifier),
		patient.WithLogger(logger),
		patient.WithRedirectDelays(cfg.NotFoundRedirectDelay, cfg.UnconfirmedRedirectDelay),
	), nil
}
