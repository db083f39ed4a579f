package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cucibersih/backend/internal/domain"
)

type RedisSubscriptionCache struct {
	client *redis.Client
}

func NewRedisSubscriptionCache(addr string, password string, db int) *RedisSubscriptionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSubscriptionCache{client: client}
}

func (c *RedisSubscriptionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSubscriptionCache) Close() error {
	return c.client.Close()
}

func subscriptionKey(merchantID string) string {
	return "sub:" + merchantID
}

func (c *RedisSubscriptionCache) Get(ctx context.Context, merchantID string) (*domain.Subscription, bool, error) {
	val, err := c.client.Get(ctx, subscriptionKey(merchantID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sub domain.Subscription
	if err := json.Unmarshal([]byte(val), &sub); err != nil {
		return nil, false, err
	}
	return &sub, true, nil
}

func (c *RedisSubscriptionCache) Set(ctx context.Context, merchantID string, sub *domain.Subscription, ttl time.Duration) error {
	if sub == nil {
		return nil
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, subscriptionKey(merchantID), payload, ttl).Err()
}

func (c *RedisSubscriptionCache) Invalidate(ctx context.Context, merchantID string) error {
	return c.client.Del(ctx, subscriptionKey(merchantID)).Err()
}
