package main

import (
	"context"
	"errors"

	"spndr/internal/amqp"
	"spndr/internal/cli"
	"spndr/internal/config"
	"spndr/internal/log"
	"spndr/internal/sheets"
	gsheet "spndr/internal/sheets/google"
	"spndr/internal/sheets/memory"
	"spndr/internal/storage"
	"spndr/internal/worker"
)

type mirror interface {
	sheets.TransactionMirror
	sheets.RowLister
}

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig(false)
	if err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting spndr-worker")

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		cli.Fatal(logger, "Worker failed", err)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *log.Logger) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the worker")
	}

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	var target mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			return err
		}
		if err := client.EnsureHeader(ctx); err != nil {
			return err
		}
		target = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		target = memory.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	w := worker.NewMirrorWorker(target, logger)

	// On startup, mirror anything the queue lost while the worker was down.
	if err := reconcile(ctx, cfg, logger, w, target); err != nil {
		logger.Error("Startup reconcile failed", log.FieldError, err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer amqpClient.Close()

	return amqpClient.Consume(ctx, w.HandleEvent)
}

func reconcile(ctx context.Context, cfg *config.Config, logger *log.Logger, w *worker.MirrorWorker, target sheets.RowLister) error {
	repo, err := cli.OpenRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	txs, err := repo.List(ctx, storage.ListFilter{})
	if err != nil {
		return err
	}
	_, err = w.Reconcile(ctx, target, txs)
	return err
}
