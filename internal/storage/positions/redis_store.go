package positions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ordinex/signalrelay/internal/domain"
)

// positionsHashKey single hash holding all records, field per pair.
const positionsHashKey = "signalrelay:positions"

// RedisStore keeps the open-position set in a redis hash, for deployments
// where several relay instances share one duplicate-check set.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, pair domain.Pair) (*domain.PositionRecord, error) {
	raw, err := s.client.HGet(ctx, positionsHashKey, pair.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "redis hget position")
	}

	var rec domain.PositionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errors.Wrap(err, "decode position record")
	}
	return &rec, nil
}

func (s *RedisStore) Set(ctx context.Context, rec domain.PositionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal position record")
	}

	if err := s.client.HSet(ctx, positionsHashKey, rec.Pair.String(), payload).Err(); err != nil {
		return errors.Wrap(err, "redis hset position")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, pair domain.Pair) error {
	if err := s.client.HDel(ctx, positionsHashKey, pair.String()).Err(); err != nil {
		return errors.Wrap(err, "redis hdel position")
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.PositionRecord, error) {
	raw, err := s.client.HGetAll(ctx, positionsHashKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis hgetall positions")
	}

	out := make([]domain.PositionRecord, 0, len(raw))
	for _, payload := range raw {
		var rec domain.PositionRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, errors.Wrap(err, "decode position record")
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
