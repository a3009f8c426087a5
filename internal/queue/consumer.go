package queue

import (
	"context"
	"time"

	"assessment-results/internal/config"
	"assessment-results/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const pollTimeout = 5 * time.Second

type Consumer struct {
	client *redis.Client
	cfg    *config.Config
	log    zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client: redisClient.Client(),
		cfg:    cfg,
		log:    logger.Component("queue"),
	}
}

func (c *Consumer) ConsumeRecalcQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.RecalcQueue, handler)
}

func (c *Consumer) ConsumeImportQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.ImportQueue, handler)
}

func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, pollTimeout, queueName).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to consume message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := result[1]
		if err := handler(ctx, []byte(message)); err != nil {
			if ctx.Err() != nil {
				// Shutting down: hand the message back for the next consumer.
				if rqErr := c.client.RPush(context.Background(), queueName, message).Err(); rqErr != nil {
					c.log.Error().Err(rqErr).Str("queue", queueName).Msg("Failed to requeue message")
				}
				return ctx.Err()
			}
			c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to process message")
			dlqName := queueName + c.cfg.Redis.DLQSuffix
			if dlqErr := c.client.LPush(ctx, dlqName, message).Err(); dlqErr != nil {
				c.log.Error().Err(dlqErr).Str("dlq", dlqName).Msg("Failed to move message to DLQ")
			}
		}
	}
}
