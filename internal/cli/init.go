// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/spndr, cmd/spndr-api, and cmd/spndr-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spndr/internal/config"
	"spndr/internal/log"
	"spndr/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// A missing file is not an error; production sets the environment directly.
func LoadEnvFile(filenames ...string) {
	_ = godotenv.Load(filenames...)
}

// SetupLogger builds the process logger from LOG_LEVEL and makes it the
// slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logConfig := log.DefaultConfig()
	logConfig.Level = log.ParseLevel(cfg.LogLevel)
	logConfig.Component = component
	logger := log.New(logConfig)
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from the environment and validates it.
// Client processes skip the server-only checks.
func LoadConfig(client bool) (*config.Config, error) {
	cfg := config.Load()
	validate := cfg.Validate
	if client {
		validate = cfg.ValidateClient
	}
	if err := validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenRepository opens PostgreSQL when DATABASE_URL is set and the SQLite
// file otherwise.
func OpenRepository(cfg *config.Config, logger *log.Logger) (*storage.Repository, error) {
	if cfg.UsesPostgres() {
		logger.Info("Opening PostgreSQL repository")
		return storage.NewPostgresRepository(cfg.DatabaseURL, logger)
	}
	logger.Info("Opening SQLite repository", "path", cfg.SQLiteDBPath)
	return storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
}

// Fatal logs err and exits.
func Fatal(logger *log.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{log.FieldError, err}, args...)...)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
