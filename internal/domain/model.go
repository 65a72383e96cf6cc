package domain

import (
	"time"
)

// UserModel is the GORM model for the users table. The messaging core
// reads users for display data but never mutates them.
type UserModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	DisplayName string    `gorm:"type:varchar(100);not null"`
	AvatarURL   string    `gorm:"type:varchar(512)"`
	Bio         string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// ConversationModel is the GORM model for the conversations table.
// Participant ids are stored normalized (participant1_id < participant2_id)
// and the pair is unique, so any two users share at most one conversation.
type ConversationModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Participant1ID int64     `gorm:"not null;uniqueIndex:idx_conversations_pair,priority:1;index"`
	Participant2ID int64     `gorm:"not null;uniqueIndex:idx_conversations_pair,priority:2;index"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time
}

func (ConversationModel) TableName() string {
	return "conversations"
}

// MessageModel is the GORM model for the messages table. Rows are
// immutable except for the read flag; per-conversation order is id order.
type MessageModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	ConversationID int64     `gorm:"not null;index;uniqueIndex:idx_messages_client_key,priority:1"`
	SenderID       int64     `gorm:"not null;uniqueIndex:idx_messages_client_key,priority:2"`
	ReceiverID     int64     `gorm:"not null;index"`
	Text           string    `gorm:"type:text"`
	Read           bool      `gorm:"column:is_read;not null;default:false"`
	ClientMsgID    *string   `gorm:"type:varchar(64);uniqueIndex:idx_messages_client_key,priority:3"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts a MessageModel to a domain Message.
func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Text:           m.Text,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if m.ClientMsgID != nil {
		msg.ClientMsgID = *m.ClientMsgID
	}
	return msg
}

// ToDomain converts a ConversationModel to a domain Conversation.
func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:             m.ID,
		Participant1ID: m.Participant1ID,
		Participant2ID: m.Participant2ID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// Message is a delivered or stored direct message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	ClientMsgID    string    `json:"client_msg_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is the durable pairing of two users.
type Conversation struct {
	ID             int64     `json:"id"`
	Participant1ID int64     `json:"participant1_id"`
	Participant2ID int64     `json:"participant2_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Peer is the other participant's display data in a conversation listing.
type Peer struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	Peer        Peer     `json:"peer"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int64    `json:"unread_count"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// NormalizePair orders a participant pair so the smaller id comes first.
func NormalizePair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
