package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"assessment-results/internal/bulkedit"
	"assessment-results/internal/config"
	"assessment-results/internal/gateway"
	"assessment-results/internal/logger"
	"assessment-results/internal/queue"
	"assessment-results/internal/rows"
	"assessment-results/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting recalc worker")

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	store := rows.NewRedisStore(redisClient, cfg)
	recalculator := bulkedit.NewRecalculator(gateway.NewClient(cfg), store)
	recalcWorker := worker.NewRecalcWorker(cfg, recalculator, redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := recalcWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Recalc worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down recalc worker...")

	cancel()
	<-done
	recalcWorker.Stop()

	log.Info().Msg("Recalc worker exited")
}
