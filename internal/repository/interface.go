package repository

import (
	"context"
	"errors"

	"github.com/reservo/chat-service/internal/domain"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
)

// ChatRepository is the persistence boundary of the messaging core.
type ChatRepository interface {
	// FindOrCreateConversation returns the one conversation between the two
	// users, creating it if none exists. Safe to call concurrently for the
	// same pair; both callers converge on the same row.
	FindOrCreateConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error)

	// GetConversation returns a conversation by id, or ErrConversationNotFound.
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)

	// InsertMessage stores a message and advances the conversation's
	// updated_at in the same transaction. When the message carries a
	// ClientMsgID that was already stored for this conversation and sender,
	// the original row is returned and nothing is inserted.
	InsertMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)

	// MarkRead flips every unread message addressed to receiverID in the
	// conversation to read, returning how many rows changed.
	MarkRead(ctx context.Context, conversationID, receiverID int64) (int64, error)

	// ListMessages returns up to limit messages of a conversation in
	// chronological order. beforeID > 0 restricts to messages older than
	// that id (cursor for paging backwards).
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]*domain.Message, error)

	// ListConversationsForUser returns the user's conversations, newest
	// activity first, each with the peer's display data, the last message
	// (absent for an empty conversation) and the unread count.
	ListConversationsForUser(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error)
}
