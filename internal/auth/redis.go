package auth

import (
	"context"
	"errors"
	"time"

	"github.com/learngate/apiserver/config"
	"github.com/redis/go-redis/v9"
)

// Sessions older than this are dropped by Redis on its own; logout and the
// corrupt-state fail-safe delete them eagerly.
const slotTTL = 30 * 24 * time.Hour

// RedisSlotStore persists session slots in Redis.
type RedisSlotStore struct {
	client *redis.Client
}

func NewRedisSlotStore(client *redis.Client) *RedisSlotStore {
	return &RedisSlotStore{client: client}
}

// NewRedisClient opens and pings a Redis client from config.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisSlotStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisSlotStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, slotTTL).Err()
}

func (s *RedisSlotStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
