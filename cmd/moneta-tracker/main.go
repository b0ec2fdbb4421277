package main

import (
	"context"
	"os"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/cli"
	"moneta/internal/config"
	"moneta/internal/log"
	"moneta/internal/sheets"
	gsheet "moneta/internal/sheets/google"
	"moneta/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(config.Load().SlogLevel())
	logger.Info("Starting moneta-tracker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the tracker", "error_type", log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var mirror sheets.PageViewAppender
	if cfg.GoogleSpreadsheetID != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := gsheet.New(initCtx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		cancel()
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Mirroring page views to Google Sheets", "sheet", client.SheetName())
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	w := worker.NewTrackingWorker(repo, mirror, cfg.WorkerBatchSize, logger)
	if err := w.Run(ctx, consumer, cfg.WorkerMirrorInterval); err != nil {
		logger.Error("Tracker stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Tracker stopped gracefully")
}
