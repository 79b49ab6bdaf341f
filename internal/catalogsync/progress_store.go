package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressStore хранит снимки прогресса вне памяти процесса.
type ProgressStore interface {
	Save(ctx context.Context, p *Progress, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Progress, error)
}

type nopStore struct{}

func (nopStore) Save(ctx context.Context, p *Progress, ttl time.Duration) error { return nil }

func (nopStore) Load(ctx context.Context, id string) (*Progress, error) {
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

const redisKeyPrefix = "partsync:sync:run:"

// RedisProgressStore держит снимок каждого запуска под ключом с TTL, равным сроку хранения запуска.
type RedisProgressStore struct {
	client redis.Cmdable
}

func NewRedisProgressStore(client redis.Cmdable) *RedisProgressStore {
	return &RedisProgressStore{client: client}
}

func progressKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisProgressStore) Save(ctx context.Context, p *Progress, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress %s: %w", p.ID, err)
	}
	if err := s.client.Set(ctx, progressKey(p.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.ID, err)
	}
	return nil
}

func (s *RedisProgressStore) Load(ctx context.Context, id string) (*Progress, error) {
	data, err := s.client.Get(ctx, progressKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal progress %s: %w", id, err)
	}
	p.EstimatedRemaining = time.Duration(p.EstimatedRemainingSecs) * time.Second
	return &p, nil
}
