package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reservo/chat-service/internal/cache"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/repository"
	"github.com/reservo/chat-service/pkg/log"
)

type historyService struct {
	repo     repository.ChatRepository
	cache    cache.MessagePageCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewHistoryService serves conversation listings and message pages. Pages
// behind a cursor go through the cache; the latest page is always read
// through so new messages and read flips show up immediately.
func NewHistoryService(repo repository.ChatRepository, pageCache cache.MessagePageCache, cacheTTL time.Duration) HistoryService {
	return &historyService{
		repo:     repo,
		cache:    pageCache,
		cacheTTL: cacheTTL,
	}
}

func (s *historyService) ListConversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	return s.repo.ListConversationsForUser(ctx, userID)
}

func (s *historyService) GetMessages(ctx context.Context, userID, conversationID int64, limit int, beforeID int64) ([]*domain.Message, error) {
	if err := s.checkParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if beforeID == 0 {
		return s.repo.ListMessages(ctx, conversationID, limit, 0)
	}

	key := s.cache.BuildKey(conversationID, beforeID, limit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// The closure outlives the first caller's request: coalesced
		// followers must not inherit its cancellation.
		return s.fetchPage(context.WithoutCancel(ctx), conversationID, limit, beforeID, key)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]*domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

func (s *historyService) fetchPage(ctx context.Context, conversationID int64, limit int, beforeID int64, key string) ([]*domain.Message, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, limit, beforeID)
	if err != nil {
		return nil, err
	}

	// Store off the request path; a failed cache write costs nothing but
	// the next read-through.
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, messages, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return messages, nil
}

func (s *historyService) MarkRead(ctx context.Context, userID, conversationID int64) (int64, error) {
	if err := s.checkParticipant(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return s.repo.MarkRead(ctx, conversationID, userID)
}

func (s *historyService) checkParticipant(ctx context.Context, userID, conversationID int64) error {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return repository.ErrNotParticipant
	}
	return nil
}
