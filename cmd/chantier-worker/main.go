package main

import (
	"context"
	"errors"
	"os"

	"chantier/internal/amqp"
	"chantier/internal/cli"
	"chantier/internal/config"
	"chantier/internal/log"
	"chantier/internal/services"
	gsheet "chantier/internal/sheets/google"
	"chantier/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting chantier-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	// The worker reads the same database the API writes
	repo, err := cli.OpenRepository(cfg)
	if err != nil {
		logger.Error("Failed to open repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	creds := gsheet.Credentials{
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		AccessToken:        cfg.GoogleAccessToken,
	}
	opts, err := creds.ClientOptions(context.Background())
	if err != nil {
		logger.Error("Invalid Google credentials", log.FieldError, err)
		os.Exit(1)
	}
	sheetsClient, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, opts...)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	svc := services.NewSiteService(repo, nil, nil, services.NewSiteCache(cfg.SiteCacheSize, cfg.SiteCacheTTL))
	exportWorker := worker.NewExportWorker(svc, sheetsClient)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	logger.Info("Consuming export requests", "queue", cfg.AMQPQueue)
	if err := amqpClient.ConsumeExportRequests(ctx, exportWorker.HandleExportRequest); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
