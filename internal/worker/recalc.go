package worker

import (
	"context"
	"encoding/json"

	"assessment-results/internal/bulkedit"
	"assessment-results/internal/config"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/internal/queue"

	"github.com/rs/zerolog"
)

type RecalcWorker struct {
	recalculator *bulkedit.Recalculator
	consumer     *queue.Consumer
	workerPool   *WorkerPool
	log          zerolog.Logger
}

func NewRecalcWorker(cfg *config.Config, recalculator *bulkedit.Recalculator, redisClient *queue.RedisClient) *RecalcWorker {
	return &RecalcWorker{
		recalculator: recalculator,
		consumer:     queue.NewConsumer(redisClient, cfg),
		workerPool:   NewWorkerPool("recalc", cfg.Workers.Recalc.Count),
		log:          logger.Component("recalc-worker"),
	}
}

func (w *RecalcWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting recalc worker")

	w.workerPool.Start(ctx)

	return w.workerPool.Consume(ctx, func(ctx context.Context) error {
		return w.consumer.ConsumeRecalcQueue(ctx, w.handleMessage)
	})
}

func (w *RecalcWorker) Stop() {
	w.log.Info().Msg("Stopping recalc worker")
	w.workerPool.Stop()
}

func (w *RecalcWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.RecalcJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal recalc job")
		return err
	}

	w.log.Debug().Str("scope", job.Scope.String()).Int64("student_party_id", job.StudentPartyID).Msg("Processing recalc job")

	return w.workerPool.Run(ctx, func(ctx context.Context) error {
		_, err := w.recalculator.Recalculate(ctx, job)
		return err
	})
}
