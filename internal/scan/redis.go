package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

const dedupKeyPrefix = "match:scan:"

// RedisDeduper tracks seen scan ids in Redis with a TTL equal to the
// retention window, so webhook re-deliveries are rejected across restarts
// and across engine replicas.
type RedisDeduper struct {
	rdb       *redis.Client
	retention time.Duration
	logger    *zap.Logger
}

// NewRedisDeduper connects to Redis and returns a deduper.
func NewRedisDeduper(redisURL string, retention time.Duration, logger *zap.Logger) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisDeduper{rdb: rdb, retention: retention, logger: logger}, nil
}

// SeenAndRecord records id with SET NX EX. Returns true when id already exists.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKeyPrefix+id, 1, d.retention).Result()
	if err != nil {
		return false, fmt.Errorf("%w: dedup set %s: %v", storage.ErrUnavailable, id, err)
	}
	return !ok, nil
}

// Unrecord deletes the dedup key for id.
func (d *RedisDeduper) Unrecord(ctx context.Context, id string) error {
	if err := d.rdb.Del(ctx, dedupKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: dedup del %s: %v", storage.ErrUnavailable, id, err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (d *RedisDeduper) Close() error {
	return d.rdb.Close()
}
