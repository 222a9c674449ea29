package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from a redis:// URL or a host:port address.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

const webhookKeyPrefix = "webhook:processed:"

// RedisWebhookGuard remembers webhook deliveries that were fully processed.
type RedisWebhookGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisWebhookGuard(client *redis.Client, ttl time.Duration) *RedisWebhookGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisWebhookGuard{client: client, ttl: ttl}
}

func (g *RedisWebhookGuard) Seen(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, webhookKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisWebhookGuard) MarkProcessed(ctx context.Context, key string) error {
	return g.client.Set(ctx, webhookKeyPrefix+key, "1", g.ttl).Err()
}
