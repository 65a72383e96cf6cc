package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// WebSocket event names from the client.
const (
	EventUserJoin    = "user:join"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// WebSocket event names to the client.
const (
	EventMessageNew = "message:new"
	EventMessageAck = "message:ack"
	EventError      = "error"
	// typing:start / typing:stop are forwarded under their inbound names.
)

// Error codes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Envelope frames every WebSocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent marshals an outbound envelope.
func EncodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Client -> server payloads.

// JoinPayload registers a connection under a user identity. The wire form
// is either a bare user id number or an object carrying the id and an
// optional access token.
type JoinPayload struct {
	UserID int64  `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// DecodeJoin parses a user:join payload, accepting both wire forms.
func DecodeJoin(data json.RawMessage) (*JoinPayload, error) {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		if id <= 0 {
			return nil, errors.New("userId must be positive")
		}
		return &JoinPayload{UserID: id}, nil
	}

	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New("malformed user:join payload")
	}
	if p.UserID <= 0 {
		return nil, errors.New("userId must be positive")
	}
	return &p, nil
}

// SendPayload is a message:send intent. ConversationID 0 means the client
// does not know the conversation yet and the server resolves it from the
// participant pair.
type SendPayload struct {
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	ReceiverID     int64  `json:"receiverId"`
	Text           string `json:"text"`
	ClientMsgID    string `json:"clientMsgId,omitempty"`
}

// Validate fails closed on anything routing must not see. Empty text is
// legal; a self-addressed message is not.
func (p *SendPayload) Validate() error {
	if p.SenderID <= 0 {
		return errors.New("senderId is required")
	}
	if p.ReceiverID <= 0 {
		return errors.New("receiverId is required")
	}
	if p.SenderID == p.ReceiverID {
		return errors.New("sender and receiver must differ")
	}
	if p.ConversationID < 0 {
		return errors.New("conversationId must not be negative")
	}
	return nil
}

// TypingPayload is a typing:start / typing:stop intent.
type TypingPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	ReceiverID     int64 `json:"receiverId"`
}

func (p *TypingPayload) Validate() error {
	if p.ConversationID <= 0 {
		return errors.New("conversationId is required")
	}
	if p.UserID <= 0 {
		return errors.New("userId is required")
	}
	if p.ReceiverID <= 0 {
		return errors.New("receiverId is required")
	}
	if p.UserID == p.ReceiverID {
		return errors.New("typist and receiver must differ")
	}
	return nil
}

// Server -> client payloads.

// MessageNewPayload is the wire form of a delivered message. The read
// flag is 0/1 and created_at is RFC 3339, matching the existing clients.
type MessageNewPayload struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	ReceiverID     int64  `json:"receiver_id"`
	Text           string `json:"text"`
	Read           int    `json:"read"`
	CreatedAt      string `json:"created_at"`
}

// NewMessagePayload builds the wire form of a stored message.
func NewMessagePayload(m *Message) *MessageNewPayload {
	read := 0
	if m.Read {
		read = 1
	}
	return &MessageNewPayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Text:           m.Text,
		Read:           read,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TypingEventPayload is the forwarded typing signal; it carries no
// receiver because it only ever goes to the receiver.
type TypingEventPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// AckPayload confirms a message:send to the sending connection, distinct
// from the message:new self-delivery.
type AckPayload struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	ClientMsgID    string `json:"clientMsgId,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ErrorPayload reports a rejected intent to the offending connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorPayload builds an error event payload.
func NewErrorPayload(code, message string) *ErrorPayload {
	return &ErrorPayload{Code: code, Message: message}
}
