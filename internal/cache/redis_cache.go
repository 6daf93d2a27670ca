package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dukkan/backend/internal/domain"
)

// RedisCreditStatsCache stores one hash per prefix with a field per day, so a
// single DEL invalidates every cached day.
type RedisCreditStatsCache struct {
	client *redis.Client
	key    string
}

func NewRedisCreditStatsCache(addr string, password string, db int, prefix string) *RedisCreditStatsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if prefix == "" {
		prefix = "dukkan"
	}
	return &RedisCreditStatsCache{client: client, key: prefix + ":cache:credit-stats"}
}

func (c *RedisCreditStatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCreditStatsCache) Close() error {
	return c.client.Close()
}

func (c *RedisCreditStatsCache) Get(ctx context.Context, day string) (*domain.CreditStats, bool, error) {
	val, err := c.client.HGet(ctx, c.key, day).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats domain.CreditStats
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisCreditStatsCache) Set(ctx context.Context, day string, value *domain.CreditStats, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.key, day, payload)
		pipe.Expire(ctx, c.key, ttl)
		return nil
	})
	return err
}

func (c *RedisCreditStatsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
