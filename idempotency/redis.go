package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:idempotency:"

// RedisStore binds idempotency keys to order ids for a limited time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Claim binds key to orderID unless another order holds it, in which case
// that order's id is returned with claimed=false.
func (s *RedisStore) Claim(ctx context.Context, key, orderID string) (string, bool, error) {
	redisKey := keyPrefix + key

	// the holder can expire between SETNX and GET, so try twice
	for range 2 {
		ok, err := s.client.SetNX(ctx, redisKey, orderID, s.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis.SetNX: %w", err)
		}
		if ok {
			return orderID, true, nil
		}

		existing, err := s.client.Get(ctx, redisKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("redis.Get: %w", err)
		}
		return existing, false, nil
	}

	return "", false, fmt.Errorf("claim %s: key kept expiring", key)
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis.Del: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
