package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/internal/hub"
	"github.com/reservo/chat-service/internal/service"
	"github.com/reservo/chat-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and dispatches inbound envelopes to the
// chat service.
type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", func(c *gin.Context) {
		h.HandleWebSocket(c.Writer, c.Request)
	})
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		// ReadPump's own defer has unregistered the client by now, so the
		// disconnect handler sees the post-leave connection counts.
		_ = h.service.HandleDisconnect(context.Background(), client)
	}()
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		client.SendError(domain.ErrCodeBadRequest, "malformed envelope")
		return
	}

	ctx := context.Background()

	switch env.Event {
	case domain.EventUserJoin:
		payload, err := domain.DecodeJoin(env.Data)
		if err != nil {
			h.reject(client, env.Event, err)
			return
		}
		if err := h.service.HandleJoin(ctx, client, payload); err != nil {
			h.logHandlerError(client, env.Event, err)
		}

	case domain.EventMessageSend:
		var payload domain.SendPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.reject(client, env.Event, err)
			return
		}
		if err := payload.Validate(); err != nil {
			h.reject(client, env.Event, err)
			return
		}
		if err := h.service.HandleSend(ctx, client, &payload); err != nil {
			h.logHandlerError(client, env.Event, err)
		}

	case domain.EventTypingStart, domain.EventTypingStop:
		var payload domain.TypingPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.reject(client, env.Event, err)
			return
		}
		if err := payload.Validate(); err != nil {
			h.reject(client, env.Event, err)
			return
		}
		var err error
		if env.Event == domain.EventTypingStart {
			err = h.service.HandleTypingStart(ctx, client, &payload)
		} else {
			err = h.service.HandleTypingStop(ctx, client, &payload)
		}
		if err != nil {
			h.logHandlerError(client, env.Event, err)
		}

	default:
		client.SendError(domain.ErrCodeBadRequest, "unknown event")
	}
}

// reject drops a malformed event before it reaches routing.
func (h *WSHandler) reject(client *hub.Client, event string, err error) {
	l := log.L()
	l.Warn().
		Str(log.FieldConnID, client.ID).
		Str(log.FieldEvent, event).
		Err(err).
		Msg("dropping malformed event")
	client.SendError(domain.ErrCodeBadRequest, err.Error())
}

func (h *WSHandler) logHandlerError(client *hub.Client, event string, err error) {
	l := log.L()
	l.Warn().
		Str(log.FieldConnID, client.ID).
		Str(log.FieldEvent, event).
		Err(err).
		Msg("event handling failed")
}
