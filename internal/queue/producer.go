package queue

import (
	"context"
	"encoding/json"

	"assessment-results/internal/config"
	"assessment-results/internal/model"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

func (p *Producer) EnqueueRecalcJob(ctx context.Context, job model.RecalcJob) error {
	return p.enqueue(ctx, p.cfg.Redis.RecalcQueue, job)
}

func (p *Producer) EnqueueImportJob(ctx context.Context, job model.ImportJob) error {
	return p.enqueue(ctx, p.cfg.Redis.ImportQueue, job)
}

func (p *Producer) enqueue(ctx context.Context, queueName string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, queueName, data).Err()
}
