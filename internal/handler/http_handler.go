package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reservo/chat-service/internal/middleware"
	"github.com/reservo/chat-service/internal/repository"
	"github.com/reservo/chat-service/internal/service"
	"github.com/reservo/chat-service/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// HTTPHandler is the read/catch-up surface: conversation listings, message
// history, and read acknowledgements for clients that were offline.
type HTTPHandler struct {
	history service.HistoryService
	auth    *middleware.AuthMiddleware
}

func NewHTTPHandler(history service.HistoryService, auth *middleware.AuthMiddleware) *HTTPHandler {
	return &HTTPHandler{
		history: history,
		auth:    auth,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.auth.RequireAuth())
	{
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:conversation_id/messages", h.GetMessages)
		api.POST("/conversations/:conversation_id/read", h.MarkRead)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) ListConversations(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "unauthenticated")
		return
	}

	summaries, err := h.history.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "failed to list conversations")
		return
	}
	response.Success(c, summaries)
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "unauthenticated")
		return
	}

	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		response.BadRequest(c, "conversation_id must be a positive integer")
		return
	}

	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	var beforeID int64
	if beforeStr := c.Query("before"); beforeStr != "" {
		beforeID, err = strconv.ParseInt(beforeStr, 10, 64)
		if err != nil || beforeID < 1 {
			response.BadRequest(c, "before must be a positive message id")
			return
		}
	}

	messages, err := h.history.GetMessages(c.Request.Context(), userID, conversationID, limit, beforeID)
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}
	response.Success(c, messages)
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "unauthenticated")
		return
	}

	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		response.BadRequest(c, "conversation_id must be a positive integer")
		return
	}

	updated, err := h.history.MarkRead(c.Request.Context(), userID, conversationID)
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": updated})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (h *HTTPHandler) writeHistoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrConversationNotFound):
		response.NotFound(c, "conversation not found")
	case errors.Is(err, repository.ErrNotParticipant):
		response.Forbidden(c, "not a participant of this conversation")
	default:
		response.InternalError(c, "request failed")
	}
}
