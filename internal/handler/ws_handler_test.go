package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/hub"
	"github.com/reservo/chat-service/internal/repository"
	"github.com/reservo/chat-service/internal/service"
)

type wsFixture struct {
	server *httptest.Server
	hub    *hub.Hub
	repo   repository.ChatRepository
	svc    service.ChatService
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 65536,
		SendBufferSize: 32,
	}
}

func newWSFixture(t *testing.T) *wsFixture {
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

	repo := repository.NewGormChatRepository(db)
	wsHub := hub.NewHub(testWSConfig())
	svc := service.NewChatService(wsHub, repo, nil, config.AuthConfig{}, config.TypingConfig{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewWSHandler(wsHub, svc, testWSConfig()).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, hub: wsHub, repo: repo, svc: svc}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := strings.Replace(f.server.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *wsFixture) join(t *testing.T, conn *websocket.Conn, userID int64) {
	t.Helper()
	sendEnvelope(t, conn, domain.EventUserJoin, userID)
	waitFor(t, func() bool { return f.hub.ConnectionCount(userID) > 0 })
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(domain.Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestWebSocket_SendDeliversToBothSides(t *testing.T) {
	f := newWSFixture(t)
	sender := f.dial(t)
	receiver := f.dial(t)

	f.join(t, sender, 1)
	f.join(t, receiver, 2)

	sendEnvelope(t, sender, domain.EventMessageSend, domain.SendPayload{
		SenderID: 1, ReceiverID: 2, Text: "Hello!",
	})

	env := readEnvelope(t, receiver)
	require.Equal(t, domain.EventMessageNew, env.Event)
	var msg domain.MessageNewPayload
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Hello!", msg.Text)
	assert.Equal(t, int64(1), msg.SenderID)
	assert.Equal(t, int64(2), msg.ReceiverID)
	assert.Equal(t, 0, msg.Read)

	// Sender sees its own copy, then the explicit ack.
	env = readEnvelope(t, sender)
	assert.Equal(t, domain.EventMessageNew, env.Event)
	env = readEnvelope(t, sender)
	assert.Equal(t, domain.EventMessageAck, env.Event)
}

func TestWebSocket_SequenceArrivesInOrder(t *testing.T) {
	f := newWSFixture(t)
	sender := f.dial(t)
	receiver := f.dial(t)

	f.join(t, sender, 1)
	f.join(t, receiver, 2)

	texts := []string{"Message 1", "Message 2", "Message 3"}
	for _, text := range texts {
		sendEnvelope(t, sender, domain.EventMessageSend, domain.SendPayload{
			SenderID: 1, ReceiverID: 2, Text: text,
		})
	}

	for _, want := range texts {
		env := readEnvelope(t, receiver)
		require.Equal(t, domain.EventMessageNew, env.Event)
		var msg domain.MessageNewPayload
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, want, msg.Text)
	}
}

func TestWebSocket_TypingNotEchoed(t *testing.T) {
	f := newWSFixture(t)
	typist := f.dial(t)
	receiver := f.dial(t)

	f.join(t, typist, 1)
	f.join(t, receiver, 2)

	sendEnvelope(t, typist, domain.EventTypingStart, domain.TypingPayload{
		ConversationID: 7, UserID: 1, ReceiverID: 2,
	})
	sendEnvelope(t, typist, domain.EventTypingStop, domain.TypingPayload{
		ConversationID: 7, UserID: 1, ReceiverID: 2,
	})

	env := readEnvelope(t, receiver)
	assert.Equal(t, domain.EventTypingStart, env.Event)
	env = readEnvelope(t, receiver)
	assert.Equal(t, domain.EventTypingStop, env.Event)

	// The typist must observe neither signal; nothing else is inbound for
	// them, so a short read deadline expiring proves silence.
	require.NoError(t, typist.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := typist.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocket_MalformedSendRejected(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)
	f.join(t, conn, 1)

	// receiverId missing: dropped at the boundary with an error event.
	sendEnvelope(t, conn, domain.EventMessageSend, map[string]interface{}{"senderId": 1, "text": "x"})

	env := readEnvelope(t, conn)
	require.Equal(t, domain.EventError, env.Event)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, domain.ErrCodeBadRequest, payload.Code)
}

func TestWebSocket_UnknownEventRejected(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)

	sendEnvelope(t, conn, "bogus:event", map[string]string{})

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.EventError, env.Event)
}

func TestWebSocket_ReconnectRejoins(t *testing.T) {
	f := newWSFixture(t)
	sender := f.dial(t)
	f.join(t, sender, 1)

	first := f.dial(t)
	f.join(t, first, 2)
	require.NoError(t, first.Close())
	waitFor(t, func() bool { return f.hub.ConnectionCount(2) == 0 })

	second := f.dial(t)
	f.join(t, second, 2)

	sendEnvelope(t, sender, domain.EventMessageSend, domain.SendPayload{
		SenderID: 1, ReceiverID: 2, Text: "after reconnect",
	})

	env := readEnvelope(t, second)
	require.Equal(t, domain.EventMessageNew, env.Event)
	var msg domain.MessageNewPayload
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "after reconnect", msg.Text)

	// Exactly one delivery on the fresh connection.
	require.NoError(t, second.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)
}
