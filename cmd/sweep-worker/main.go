package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"

	"spendify/internal/amqp"
	"spendify/internal/cli"
	"spendify/internal/config"
	"spendify/internal/services"
	"spendify/internal/store"
)

func main() {
	logger := cli.SetupLogger("sweep-worker")
	cfg := cli.LoadConfig(logger)

	stores := cli.InitBackend(logger, cfg)
	defer stores.Close()

	var publisher services.OccurrencePublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without export", "error", err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	loc := cfg.Location()
	sweep := services.NewSweepService(stores.Expenses, stores.Groups, publisher, loc)

	runAll := func() {
		ctx := context.Background()
		res, err := sweep.Run(ctx, store.Everything())
		if err != nil {
			logger.Error("Sweep failed", "error", err)
			return
		}
		logger.Info("Sweep complete",
			"materialized", res.Materialized,
			"skipped", res.Skipped,
			"failed", res.Failed)
	}

	// Catch up immediately on startup, then daily at the configured time.
	logger.Info("Running startup sweep")
	runAll()

	hour, minute, err := config.ParseClock(cfg.SweepTime)
	if err != nil {
		logger.Error("Invalid sweep time", "sweep_time", cfg.SweepTime, "error", err)
		os.Exit(1)
	}

	scheduler := cron.New(cron.WithLocation(loc))
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := scheduler.AddFunc(spec, runAll); err != nil {
		logger.Error("Failed to schedule sweep", "spec", spec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	logger.Info("Sweep worker scheduled",
		"daily_at", cfg.SweepTime,
		"timezone", loc.String(),
		"backend", string(cfg.Backend))

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func() {
		<-scheduler.Stop().Done()
	})
	cli.WaitForShutdown(ctx, done)
}
