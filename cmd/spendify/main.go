package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"spendify/internal/amqp"
	"spendify/internal/auth"
	"spendify/internal/cache"
	"spendify/internal/cli"
	apphttp "spendify/internal/http"
	"spendify/internal/services"
)

func main() {
	logger := cli.SetupLogger("spendify")
	cfg := cli.LoadConfig(logger)
	if err := cfg.ValidateAuth(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	stores := cli.InitBackend(logger, cfg)

	// AMQP is optional for the API server: without it occurrences simply
	// stay out of the spreadsheet.
	var publisher services.OccurrencePublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		amqpClient = client
		publisher = client
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Warn("AMQP_URL not set, spreadsheet export disabled")
	}

	loc := cfg.Location()

	chartCache := cache.NewLRU[services.Dashboard](128, 5*time.Minute)
	cacheManager := cache.NewManager()
	cacheManager.Register(chartCache)
	cacheManager.StartCleanup(time.Minute)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.TokenDuration)

	srv := apphttp.NewServer(fmt.Sprintf(":%d", cfg.Port), apphttp.Deps{
		Expenses: services.NewExpenseService(stores.Expenses, stores.Groups, publisher, loc),
		Sweep:    services.NewSweepService(stores.Expenses, stores.Groups, publisher, loc),
		Groups:   services.NewGroupService(stores.Groups, stores.Expenses, stores.Users),
		Charts:   services.NewChartService(stores.Expenses, chartCache, loc),
		Verifier: verifier,
		Location: loc,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := stores.Close(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	})

	logger.Info("Starting HTTP server",
		"port", cfg.Port,
		"backend", string(cfg.Backend),
		"timezone", loc.String())

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
