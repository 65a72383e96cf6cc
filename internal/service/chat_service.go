package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/reservo/chat-service/internal/audit"
	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/hub"
	"github.com/reservo/chat-service/internal/repository"
	pkgjwt "github.com/reservo/chat-service/pkg/jwt"
	"github.com/reservo/chat-service/pkg/log"
)

type chatService struct {
	hub    *hub.Hub
	repo   repository.ChatRepository
	tokens *pkgjwt.Manager
	auth   config.AuthConfig
	typing *typingTracker
}

// NewChatService wires the message router and typing notifier over the
// injected presence hub and repository. tokens may be nil when
// auth.require_token is off.
func NewChatService(
	h *hub.Hub,
	repo repository.ChatRepository,
	tokens *pkgjwt.Manager,
	authCfg config.AuthConfig,
	typingCfg config.TypingConfig,
) ChatService {
	return &chatService{
		hub:    h,
		repo:   repo,
		tokens: tokens,
		auth:   authCfg,
		typing: newTypingTracker(h, typingCfg),
	}
}

func (s *chatService) HandleJoin(ctx context.Context, c *hub.Client, p *domain.JoinPayload) error {
	if s.auth.RequireToken {
		if p.Token == "" {
			c.SendError(domain.ErrCodeUnauthorized, "token required")
			audit.Log(ctx, audit.ActionJoinRejected, p.UserID, "join without token")
			return errors.New("join without token")
		}
		claims, err := s.tokens.Validate(p.Token)
		if err != nil {
			c.SendError(domain.ErrCodeUnauthorized, "invalid token")
			audit.Log(ctx, audit.ActionJoinRejected, p.UserID, "join with invalid token")
			return fmt.Errorf("join token rejected: %w", err)
		}
		if claims.UserID != p.UserID {
			c.SendError(domain.ErrCodeForbidden, "token does not match userId")
			audit.Log(ctx, audit.ActionJoinRejected, p.UserID, "join user mismatch")
			return errors.New("join user mismatch")
		}
	}

	if err := c.Session.Bind(p.UserID); err != nil {
		c.SendError(domain.ErrCodeForbidden, "connection is bound to another user")
		return err
	}

	s.hub.Join(c, p.UserID)
	audit.Log(ctx, audit.ActionJoin, p.UserID, "user joined")
	return nil
}

func (s *chatService) HandleSend(ctx context.Context, c *hub.Client, p *domain.SendPayload) error {
	senderID, bound := c.Session.BoundUser()
	if !bound {
		c.SendError(domain.ErrCodeUnauthorized, "join before sending")
		return errors.New("send before join")
	}
	if p.SenderID != senderID {
		c.SendError(domain.ErrCodeForbidden, "senderId does not match connection identity")
		audit.LogWithDetail(ctx, audit.ActionSendRejected, senderID,
			fmt.Sprintf("claimed sender %d", p.SenderID), "sender identity mismatch")
		return errors.New("sender identity mismatch")
	}

	conv, err := s.resolveConversation(ctx, p)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConversationNotFound):
			c.SendError(domain.ErrCodeBadRequest, "unknown conversation")
		case errors.Is(err, repository.ErrNotParticipant):
			c.SendError(domain.ErrCodeForbidden, "not a participant of this conversation")
		default:
			c.SendError(domain.ErrCodeInternalError, "failed to resolve conversation")
		}
		return err
	}

	// Persist first; nothing is fanned out for a message that failed to
	// reach durable storage.
	stored, err := s.repo.InsertMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		SenderID:       p.SenderID,
		ReceiverID:     p.ReceiverID,
		Text:           p.Text,
		ClientMsgID:    p.ClientMsgID,
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Int64(log.FieldConversationID, conv.ID).
			Int64(log.FieldSenderID, p.SenderID).
			Msg("message insert failed")
		c.SendError(domain.ErrCodeInternalError, "failed to store message")
		return err
	}

	s.typing.clear(conv.ID, p.SenderID)

	wire := domain.NewMessagePayload(stored)
	if err := s.hub.EmitToUser(stored.SenderID, domain.EventMessageNew, wire); err != nil {
		return err
	}
	if err := s.hub.EmitToUser(stored.ReceiverID, domain.EventMessageNew, wire); err != nil {
		return err
	}

	_ = c.SendEvent(domain.EventMessageAck, &domain.AckPayload{
		ID:             stored.ID,
		ConversationID: stored.ConversationID,
		ClientMsgID:    stored.ClientMsgID,
		CreatedAt:      wire.CreatedAt,
	})

	audit.LogWithDetail(ctx, audit.ActionSendMessage, senderID,
		fmt.Sprintf("message %d to %d", stored.ID, stored.ReceiverID), "message sent")
	return nil
}

// resolveConversation maps a send intent onto its one conversation. A zero
// conversationId means the client does not know it yet; otherwise the
// referenced conversation must exist and both claimed participants must
// belong to it.
func (s *chatService) resolveConversation(ctx context.Context, p *domain.SendPayload) (*domain.Conversation, error) {
	if p.ConversationID == 0 {
		return s.repo.FindOrCreateConversation(ctx, p.SenderID, p.ReceiverID)
	}

	conv, err := s.repo.GetConversation(ctx, p.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(p.SenderID) || !conv.HasParticipant(p.ReceiverID) {
		return nil, repository.ErrNotParticipant
	}
	return conv, nil
}

func (s *chatService) HandleTypingStart(ctx context.Context, c *hub.Client, p *domain.TypingPayload) error {
	if err := s.checkTypist(c, p); err != nil {
		return err
	}

	s.typing.start(p.ConversationID, p.UserID, p.ReceiverID)
	return s.hub.EmitToUser(p.ReceiverID, domain.EventTypingStart, &domain.TypingEventPayload{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
	})
}

func (s *chatService) HandleTypingStop(ctx context.Context, c *hub.Client, p *domain.TypingPayload) error {
	if err := s.checkTypist(c, p); err != nil {
		return err
	}

	s.typing.clear(p.ConversationID, p.UserID)
	return s.hub.EmitToUser(p.ReceiverID, domain.EventTypingStop, &domain.TypingEventPayload{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
	})
}

func (s *chatService) checkTypist(c *hub.Client, p *domain.TypingPayload) error {
	userID, bound := c.Session.BoundUser()
	if !bound {
		c.SendError(domain.ErrCodeUnauthorized, "join before typing")
		return errors.New("typing before join")
	}
	if p.UserID != userID {
		c.SendError(domain.ErrCodeForbidden, "userId does not match connection identity")
		return errors.New("typist identity mismatch")
	}
	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	userID, bound := c.Session.BoundUser()
	if !bound {
		return nil
	}

	// Only the user's last connection going away ends their typing state;
	// another tab may still be composing.
	if s.hub.ConnectionCount(userID) == 0 {
		s.typing.flushUser(userID)
	}

	audit.Log(ctx, audit.ActionDisconnect, userID, "user disconnected")
	return nil
}

func (s *chatService) Start(ctx context.Context) error {
	s.typing.startSweeper(ctx)
	l := log.L()
	l.Info().Msg("chat service started")
	return nil
}

func (s *chatService) Stop() {
	s.typing.stopSweeper()
}
