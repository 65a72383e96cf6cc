package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
)

// RedisMessagePageCache is the redis implementation of MessagePageCache.
type RedisMessagePageCache struct {
	client *redis.Client
	prefix string
}

func NewRedisMessagePageCache(cfg config.RedisConfig) (*RedisMessagePageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisMessagePageCache{
		client: client,
		prefix: cfg.CachePrefix,
	}, nil
}

func (c *RedisMessagePageCache) BuildKey(conversationID, beforeID int64, limit int) string {
	return fmt.Sprintf("%s:%d:%d:%d", c.prefix, conversationID, beforeID, limit)
}

func (c *RedisMessagePageCache) Get(ctx context.Context, key string) ([]*domain.Message, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var messages []*domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached page: %w", err)
	}
	return messages, nil
}

func (c *RedisMessagePageCache) Set(ctx context.Context, key string, messages []*domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisMessagePageCache) Close() error {
	return c.client.Close()
}
