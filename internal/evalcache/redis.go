package evalcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flagops/flagservice/internal/rollout"
)

const redisScanBatch = 200

// RedisStore implements a TTL cache for evaluation results backed by Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "flagservice:eval"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns a cached evaluation when present.
func (s *RedisStore) Get(ctx context.Context, flagName, userID string) (*rollout.Evaluation, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, nil
	}
	raw, errGet := s.client.Get(ctx, s.buildKey(flagName, userID)).Result()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("evalcache redis: get: %w", errGet)
	}
	var eval rollout.Evaluation
	if errUnmarshal := json.Unmarshal([]byte(raw), &eval); errUnmarshal != nil {
		return nil, false, fmt.Errorf("evalcache redis: decode: %w", errUnmarshal)
	}
	return &eval, true, nil
}

// Set stores an evaluation with the given TTL.
func (s *RedisStore) Set(ctx context.Context, eval *rollout.Evaluation, ttl time.Duration) error {
	if s == nil || s.client == nil || eval == nil || ttl <= 0 {
		return nil
	}
	payload, errMarshal := json.Marshal(eval)
	if errMarshal != nil {
		return fmt.Errorf("evalcache redis: encode: %w", errMarshal)
	}
	if errSet := s.client.Set(ctx, s.buildKey(eval.FlagName, eval.UserID), payload, ttl).Err(); errSet != nil {
		return fmt.Errorf("evalcache redis: set: %w", errSet)
	}
	return nil
}

// Invalidate removes a single cached evaluation.
func (s *RedisStore) Invalidate(ctx context.Context, flagName, userID string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if errDel := s.client.Del(ctx, s.buildKey(flagName, userID)).Err(); errDel != nil {
		return fmt.Errorf("evalcache redis: del: %w", errDel)
	}
	return nil
}

// InvalidateAll removes every cached evaluation under the store prefix.
func (s *RedisStore) InvalidateAll(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	pattern := s.prefix + ":*"
	var cursor uint64
	for {
		keys, next, errScan := s.client.Scan(ctx, cursor, pattern, redisScanBatch).Result()
		if errScan != nil {
			return fmt.Errorf("evalcache redis: scan: %w", errScan)
		}
		if len(keys) > 0 {
			if errDel := s.client.Del(ctx, keys...).Err(); errDel != nil {
				return fmt.Errorf("evalcache redis: del: %w", errDel)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) buildKey(flagName, userID string) string {
	return s.prefix + ":" + cacheKey(flagName, userID)
}
