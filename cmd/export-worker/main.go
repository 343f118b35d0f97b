package main

import (
	"context"
	"errors"
	"os"

	"spendify/internal/amqp"
	"spendify/internal/cli"
	"spendify/internal/sheets/google"
	"spendify/internal/worker"
)

func main() {
	logger := cli.SetupLogger("export-worker")
	cfg := cli.LoadConfig(logger)
	if err := cfg.ValidateAMQP(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	stores := cli.InitBackend(logger, cfg)
	defer stores.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	appender, err := google.New(context.Background(), google.Config{
		SpreadsheetID:   cfg.SpreadsheetID,
		SheetName:       cfg.SheetName,
		CredentialsPath: cfg.GoogleCredentialsPath,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(stores.Expenses, appender)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	logger.Info("Export worker started",
		"queue", cfg.AMQPQueue,
		"spreadsheet", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)

	err = client.ConsumeOccurrences(ctx, func(msg *amqp.OccurrenceCreatedMessage) error {
		return exporter.HandleOccurrenceMessage(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
