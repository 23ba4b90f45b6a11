package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"spndr/internal/backend"
	"spndr/internal/cli"
	"spndr/internal/log"
	"spndr/internal/remote"
	"spndr/internal/services"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig(true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Diagnostics go to stderr so command output stays clean.
	logConfig := log.DefaultConfig()
	logConfig.Output = os.Stderr
	logConfig.Level = log.ParseLevel("warn")
	if os.Getenv("LOG_LEVEL") != "" {
		logConfig.Level = log.ParseLevel(cfg.LogLevel)
	}
	logger := log.New(logConfig)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Failed to close local store", log.FieldError, err)
		}
	}()

	client := remote.New(remote.Options{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.APITimeout,
		RetryMax: cfg.APIRetryMax,
		Logger:   logger,
	})

	app := &cli.App{
		Sync:     services.NewSyncCoordinator(client, result.Store, services.DefaultSyncCoordinatorConfig(cfg.UserID), logger),
		Out:      os.Stdout,
		Err:      os.Stderr,
		Currency: cfg.Currency,
	}

	err = app.Run(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrUsage):
		return 2
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}
