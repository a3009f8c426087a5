package rows

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"assessment-results/internal/config"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/internal/queue"
	"assessment-results/pkg/errors"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const maxPatchAttempts = 5

// RedisStore shares the row snapshot between the API and the workers.
// Rows live in one hash per scope, their order in a list, and changes are
// published on a per-scope channel.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisStore(redisClient *queue.RedisClient, cfg *config.Config) *RedisStore {
	return &RedisStore{
		client: redisClient.Client(),
		ttl:    cfg.Redis.RowsTTL,
		log:    logger.Component("rows"),
	}
}

func rowsKey(scope model.Scope) string {
	return "results:rows:" + scope.String()
}

func orderKey(scope model.Scope) string {
	return "results:order:" + scope.String()
}

func changesChannel(scope model.Scope) string {
	return "results:changes:" + scope.String()
}

func (s *RedisStore) Load(ctx context.Context, scope model.Scope, rows []model.AssessmentResult) error {
	values := make(map[string]interface{}, len(rows))
	order := make([]interface{}, 0, len(rows))
	for i := range rows {
		data, err := json.Marshal(&rows[i])
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		field := strconv.FormatInt(rows[i].StudentPartyID, 10)
		if _, dup := values[field]; !dup {
			order = append(order, field)
		}
		values[field] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rowsKey(scope), orderKey(scope))
		if len(values) > 0 {
			pipe.HSet(ctx, rowsKey(scope), values)
			pipe.RPush(ctx, orderKey(scope), order...)
			pipe.Expire(ctx, rowsKey(scope), s.ttl)
			pipe.Expire(ctx, orderKey(scope), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}

	s.log.Debug().Str("scope", scope.String()).Int("rows", len(order)).Msg("Rows loaded")
	return nil
}

func (s *RedisStore) List(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error) {
	ids, err := s.client.LRange(ctx, orderKey(scope), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read row order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, rowsKey(scope), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	out := make([]model.AssessmentResult, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			s.log.Warn().Str("scope", scope.String()).Str("student_party_id", ids[i]).Msg("Row missing from hash")
			continue
		}
		var row model.AssessmentResult
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("failed to decode row %s: %w", ids[i], err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, scope model.Scope, studentPartyID int64) (*model.AssessmentResult, error) {
	data, err := s.client.HGet(ctx, rowsKey(scope), strconv.FormatInt(studentPartyID, 10)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: student %d", errors.ErrRowNotFound, studentPartyID)
	}
	if err != nil {
		return nil, err
	}

	var row model.AssessmentResult
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return &row, nil
}

// PatchField re-reads the row inside a WATCH so a concurrent patch of another
// field is merged rather than overwritten.
func (s *RedisStore) PatchField(ctx context.Context, scope model.Scope, studentPartyID int64, field string, value interface{}) (bool, error) {
	key := rowsKey(scope)
	hashField := strconv.FormatInt(studentPartyID, 10)

	var (
		change  model.FieldChange
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		changed = false

		data, err := tx.HGet(ctx, key, hashField).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("%w: student %d", errors.ErrRowNotFound, studentPartyID)
		}
		if err != nil {
			return err
		}

		var row model.AssessmentResult
		if err := json.Unmarshal(data, &row); err != nil {
			return fmt.Errorf("failed to decode row: %w", err)
		}

		change, changed, err = applyPatch(&row, scope, field, value)
		if err != nil || !changed {
			return err
		}

		encoded, err := json.Marshal(&row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hashField, encoded)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxPatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			s.log.Debug().Int("attempt", attempt+1).Str("field", field).Msg("Row changed during patch, retrying")
			continue
		}
		if err != nil {
			return false, err
		}
		if changed {
			s.publish(ctx, scope, change)
		}
		return changed, nil
	}

	return false, fmt.Errorf("failed to patch %s after %d attempts: %w", field, maxPatchAttempts, redis.TxFailedErr)
}

func (s *RedisStore) publish(ctx context.Context, scope model.Scope, change model.FieldChange) {
	data, err := json.Marshal(change)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal field change")
		return
	}
	if err := s.client.Publish(ctx, changesChannel(scope), data).Err(); err != nil {
		s.log.Error().Err(err).Str("scope", scope.String()).Msg("Failed to publish field change")
	}
}

func (s *RedisStore) Subscribe(ctx context.Context, scope model.Scope) (<-chan model.FieldChange, error) {
	pubsub := s.client.Subscribe(ctx, changesChannel(scope))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan model.FieldChange, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change model.FieldChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.log.Warn().Err(err).Msg("Dropping malformed field change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
