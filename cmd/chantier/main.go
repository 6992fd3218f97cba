package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"chantier/internal/amqp"
	"chantier/internal/cache"
	"chantier/internal/cli"
	apphttp "chantier/internal/http"
	"chantier/internal/log"
	"chantier/internal/middleware/ratelimit"
	"chantier/internal/services"
	"chantier/internal/storage"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, nil)

	repo, err := cli.OpenRepository(cfg)
	if err != nil {
		logger.Error("Failed to open repository", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Repository ready", "backend", cfg.DataBackend)

	files, err := storage.NewDiskFileStore(cfg.FilesDir)
	if err != nil {
		logger.Error("Failed to prepare files directory", log.FieldError, err, "path", cfg.FilesDir)
		os.Exit(1)
	}

	checks := map[string]apphttp.Checker{"storage": repo}

	// Exports are optional: without a broker the API serves everything but
	// the queued export endpoint.
	var publisher services.ExportPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		checks["amqp"] = apphttp.CheckFunc(func(context.Context) error { return amqpClient.Ping() })
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, queued exports unavailable")
	}

	siteCache := services.NewSiteCache(cfg.SiteCacheSize, cfg.SiteCacheTTL)
	svc := services.NewSiteService(repo, publisher, files, siteCache)
	limiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute)
	ipLimiter := ratelimit.NewLimiter(cfg.RateLimitPerIPPerMinute)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:    logger.WithComponent(log.ComponentHTTP),
		Limiter:   limiter,
		IPLimiter: ipLimiter,
		Checks:    checks,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	go cache.RunJanitor(ctx, time.Minute, siteCache, limiter, ipLimiter)

	logger.Info("Starting chantier server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
