package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reservo/chat-service/internal/domain"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.UserModel{},
		&domain.ConversationModel{},
		&domain.MessageModel{},
	))
	return db
}

func seedUsers(t *testing.T, db *gorm.DB) {
	t.Helper()
	users := []domain.UserModel{
		{ID: 1, Email: "ana@example.com", DisplayName: "Ana"},
		{ID: 2, Email: "bruno@example.com", DisplayName: "Bruno"},
		{ID: 3, Email: "carla@example.com", DisplayName: "Carla"},
	}
	require.NoError(t, db.Create(&users).Error)
}

func TestFindOrCreateConversation_OnePerPair(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	first, err := r.FindOrCreateConversation(ctx, 2, 1)
	require.NoError(t, err)
	// Pair is stored normalized regardless of argument order.
	assert.Equal(t, int64(1), first.Participant1ID)
	assert.Equal(t, int64(2), first.Participant2ID)

	second, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&domain.ConversationModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetConversation_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)

	_, err := r.GetConversation(context.Background(), 999)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestInsertMessage_StoresAndTouchesConversation(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	conv, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)
	before := conv.UpdatedAt

	stored, err := r.InsertMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		SenderID:       1,
		ReceiverID:     2,
		Text:           "Hello!",
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.False(t, stored.Read)
	assert.False(t, stored.CreatedAt.IsZero())

	reloaded, err := r.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, !reloaded.UpdatedAt.Before(before))
}

func TestInsertMessage_EmptyTextAllowed(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	conv, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)

	stored, err := r.InsertMessage(ctx, &domain.Message{
		ConversationID: conv.ID, SenderID: 1, ReceiverID: 2, Text: "",
	})
	require.NoError(t, err)
	assert.Empty(t, stored.Text)
}

func TestInsertMessage_IdempotentOnClientKey(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	conv, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)

	msg := &domain.Message{
		ConversationID: conv.ID, SenderID: 1, ReceiverID: 2,
		Text: "retried", ClientMsgID: "key-1",
	}
	first, err := r.InsertMessage(ctx, msg)
	require.NoError(t, err)
	second, err := r.InsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&domain.MessageModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The same key from a different sender is a different message.
	other := &domain.Message{
		ConversationID: conv.ID, SenderID: 2, ReceiverID: 1,
		Text: "reply", ClientMsgID: "key-1",
	}
	third, err := r.InsertMessage(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestMarkRead(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	conv, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)

	for _, text := range []string{"a", "b"} {
		_, err := r.InsertMessage(ctx, &domain.Message{
			ConversationID: conv.ID, SenderID: 1, ReceiverID: 2, Text: text,
		})
		require.NoError(t, err)
	}
	_, err = r.InsertMessage(ctx, &domain.Message{
		ConversationID: conv.ID, SenderID: 2, ReceiverID: 1, Text: "c",
	})
	require.NoError(t, err)

	updated, err := r.MarkRead(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Re-running changes nothing.
	updated, err = r.MarkRead(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, updated)

	messages, err := r.ListMessages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.True(t, messages[0].Read)
	assert.True(t, messages[1].Read)
	assert.False(t, messages[2].Read) // addressed to user 1, untouched
}

func TestReadFlagColumnName(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	conv, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)
	_, err = r.InsertMessage(ctx, &domain.Message{
		ConversationID: conv.ID, SenderID: 1, ReceiverID: 2, Text: "hi",
	})
	require.NoError(t, err)

	// The flag is stored as is_read: "read" is a reserved word in MySQL
	// and the raw filter strings do not quote identifiers.
	var flags []bool
	require.NoError(t, db.Raw("SELECT is_read FROM messages").Scan(&flags).Error)
	require.Len(t, flags, 1)
	assert.False(t, flags[0])

	_, err = r.MarkRead(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.NoError(t, db.Raw("SELECT is_read FROM messages").Scan(&flags).Error)
	assert.True(t, flags[0])
}

func TestListMessages_ChronologicalWithCursor(t *testing.T) {
	db := setupDB(t)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	conv, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)

	var ids []int64
	for _, text := range []string{"m1", "m2", "m3", "m4"} {
		m, err := r.InsertMessage(ctx, &domain.Message{
			ConversationID: conv.ID, SenderID: 1, ReceiverID: 2, Text: text,
		})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	all, err := r.ListMessages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, m := range all {
		assert.Equal(t, ids[i], m.ID)
	}

	latest, err := r.ListMessages(ctx, conv.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "m3", latest[0].Text)
	assert.Equal(t, "m4", latest[1].Text)

	older, err := r.ListMessages(ctx, conv.ID, 2, latest[0].ID)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "m1", older[0].Text)
	assert.Equal(t, "m2", older[1].Text)
}

func TestListConversationsForUser(t *testing.T) {
	db := setupDB(t)
	seedUsers(t, db)
	r := NewGormChatRepository(db)
	ctx := context.Background()

	withBruno, err := r.FindOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)
	withCarla, err := r.FindOrCreateConversation(ctx, 1, 3)
	require.NoError(t, err)

	for _, text := range []string{"hi", "still there?"} {
		_, err := r.InsertMessage(ctx, &domain.Message{
			ConversationID: withBruno.ID, SenderID: 2, ReceiverID: 1, Text: text,
		})
		require.NoError(t, err)
	}

	summaries, err := r.ListConversationsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Most recent activity first.
	assert.Equal(t, withBruno.ID, summaries[0].ID)
	assert.Equal(t, "Bruno", summaries[0].Peer.DisplayName)
	assert.Equal(t, int64(2), summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "still there?", summaries[0].LastMessage.Text)

	// An empty conversation is valid and simply empty.
	assert.Equal(t, withCarla.ID, summaries[1].ID)
	assert.Equal(t, "Carla", summaries[1].Peer.DisplayName)
	assert.Zero(t, summaries[1].UnreadCount)
	assert.Nil(t, summaries[1].LastMessage)

	// The other side sees its own unread count.
	brunoSide, err := r.ListConversationsForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, brunoSide, 1)
	assert.Equal(t, "Ana", brunoSide[0].Peer.DisplayName)
	assert.Zero(t, brunoSide[0].UnreadCount)
}
