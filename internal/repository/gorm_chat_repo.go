package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/reservo/chat-service/internal/domain"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

func (r *GormChatRepository) FindOrCreateConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	p1, p2 := domain.NormalizePair(userA, userB)

	conv, err := r.findByPair(ctx, p1, p2)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	model := &domain.ConversationModel{
		Participant1ID: p1,
		Participant2ID: p2,
		UpdatedAt:      time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		// A concurrent first-message for the same pair hit the unique
		// index first; the row it created is the conversation.
		if conv, lookupErr := r.findByPair(ctx, p1, p2); lookupErr == nil {
			return conv, nil
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return model.ToDomain(), nil
}

func (r *GormChatRepository) findByPair(ctx context.Context, p1, p2 int64) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).
		First(&model, "participant1_id = ? AND participant2_id = ?", p1, p2).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormChatRepository) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormChatRepository) InsertMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	var stored *domain.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.ClientMsgID != "" {
			existing, err := findByClientKey(tx, msg.ConversationID, msg.SenderID, msg.ClientMsgID)
			if err == nil {
				stored = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		model := &domain.MessageModel{
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			Text:           msg.Text,
			Read:           false,
		}
		if msg.ClientMsgID != "" {
			key := msg.ClientMsgID
			model.ClientMsgID = &key
		}

		if err := tx.Create(model).Error; err != nil {
			if msg.ClientMsgID != "" {
				// Retried send raced us past the lookup; the unique client
				// key guarantees the winner's row is ours to return.
				existing, lookupErr := findByClientKey(tx, msg.ConversationID, msg.SenderID, msg.ClientMsgID)
				if lookupErr == nil {
					stored = existing
					return nil
				}
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}

		err := tx.Model(&domain.ConversationModel{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", model.CreatedAt).Error
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}

		stored = model.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func findByClientKey(tx *gorm.DB, conversationID, senderID int64, clientMsgID string) (*domain.Message, error) {
	var model domain.MessageModel
	err := tx.First(&model,
		"conversation_id = ? AND sender_id = ? AND client_msg_id = ?",
		conversationID, senderID, clientMsgID).Error
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormChatRepository) MarkRead(ctx context.Context, conversationID, receiverID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationID, receiverID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormChatRepository) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC")
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []domain.MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// Fetched newest-first for the cursor; callers get chronological order.
	messages := make([]*domain.Message, len(models))
	for i := range models {
		messages[len(models)-1-i] = models[i].ToDomain()
	}
	return messages, nil
}

func (r *GormChatRepository) ListConversationsForUser(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	var convs []domain.ConversationModel
	err := r.db.WithContext(ctx).
		Where("participant1_id = ? OR participant2_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(convs) == 0 {
		return []*domain.ConversationSummary{}, nil
	}

	convIDs := make([]int64, 0, len(convs))
	peerIDs := make([]int64, 0, len(convs))
	for _, c := range convs {
		convIDs = append(convIDs, c.ID)
		if c.Participant1ID == userID {
			peerIDs = append(peerIDs, c.Participant2ID)
		} else {
			peerIDs = append(peerIDs, c.Participant1ID)
		}
	}

	peers := make(map[int64]domain.Peer, len(peerIDs))
	var users []domain.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", peerIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load peers: %w", err)
	}
	for _, u := range users {
		peers[u.ID] = domain.Peer{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			AvatarURL:   u.AvatarURL,
		}
	}

	unread := make(map[int64]int64, len(convIDs))
	type unreadRow struct {
		ConversationID int64
		Count          int64
	}
	var unreadRows []unreadRow
	err = r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ? AND receiver_id = ? AND is_read = ?", convIDs, userID, false).
		Group("conversation_id").
		Scan(&unreadRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	for _, row := range unreadRows {
		unread[row.ConversationID] = row.Count
	}

	lastByConv := make(map[int64]*domain.Message, len(convIDs))
	var lastModels []domain.MessageModel
	err = r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&domain.MessageModel{}).
			Select("MAX(id)").
			Where("conversation_id IN ?", convIDs).
			Group("conversation_id")).
		Find(&lastModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load last messages: %w", err)
	}
	for i := range lastModels {
		lastByConv[lastModels[i].ConversationID] = lastModels[i].ToDomain()
	}

	summaries := make([]*domain.ConversationSummary, 0, len(convs))
	for i, c := range convs {
		summaries = append(summaries, &domain.ConversationSummary{
			Conversation: *c.ToDomain(),
			Peer:         peers[peerIDs[i]],
			LastMessage:  lastByConv[c.ID],
			UnreadCount:  unread[c.ID],
		})
	}
	return summaries, nil
}
