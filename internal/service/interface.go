package service

import (
	"context"

	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/hub"
)

// ChatService handles the application events of one connection's lifetime.
type ChatService interface {
	HandleJoin(ctx context.Context, client *hub.Client, payload *domain.JoinPayload) error
	HandleSend(ctx context.Context, client *hub.Client, payload *domain.SendPayload) error
	HandleTypingStart(ctx context.Context, client *hub.Client, payload *domain.TypingPayload) error
	HandleTypingStop(ctx context.Context, client *hub.Client, payload *domain.TypingPayload) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
	Start(ctx context.Context) error
	Stop()
}

// HistoryService serves the read side for clients catching up after being
// offline.
type HistoryService interface {
	ListConversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error)
	GetMessages(ctx context.Context, userID, conversationID int64, limit int, beforeID int64) ([]*domain.Message, error)
	MarkRead(ctx context.Context, userID, conversationID int64) (int64, error)
}
