package cache

import (
	"context"
	"errors"
	"time"

	"github.com/reservo/chat-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// MessagePageCache caches cursored history pages. Only pages behind a
// cursor are ever stored: old messages are immutable, so a cached page can
// only go stale on its read flags, bounded by the TTL.
type MessagePageCache interface {
	BuildKey(conversationID, beforeID int64, limit int) string
	Get(ctx context.Context, key string) ([]*domain.Message, error)
	Set(ctx context.Context, key string, messages []*domain.Message, ttl time.Duration) error
	Close() error
}

// Noop satisfies MessagePageCache when caching is disabled.
type Noop struct{}

func (Noop) BuildKey(conversationID, beforeID int64, limit int) string { return "" }

func (Noop) Get(ctx context.Context, key string) ([]*domain.Message, error) {
	return nil, ErrCacheMiss
}

func (Noop) Set(ctx context.Context, key string, messages []*domain.Message, ttl time.Duration) error {
	return nil
}

func (Noop) Close() error { return nil }
