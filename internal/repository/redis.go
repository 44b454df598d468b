package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisCache backs the snapshot/rate cache with redis so several
// service instances share one view of freshly aggregated balances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("redis get failed", "key", key, "error", err)
		}
		return false
	}
	return json.Unmarshal(payload, dest) == nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val any, ttl time.Duration) {
	payload, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		logger.Warn("redis set failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn("redis delete failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
