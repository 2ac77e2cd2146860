package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pvolkhin/chatgram-server/internal/core"
	"github.com/pvolkhin/chatgram-server/internal/store"
)

// ChatHandlers provides HTTP handlers for chat and message endpoints.
type ChatHandlers struct {
	hub      *core.Hub
	pipeline *core.Pipeline
	store    store.Store
	log      *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(hub *core.Hub, pipeline *core.Pipeline, st store.Store, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		hub:      hub,
		pipeline: pipeline,
		store:    st,
		log:      logger,
	}
}

// CreateChatRequest represents the create chat request body.
type CreateChatRequest struct {
	ParticipantID *int64 `json:"participant_id,omitempty"`
	IsGroup       bool   `json:"is_group"`
	Name          string `json:"name,omitempty"`
}

// CreateChatResponse represents the create chat response body.
type CreateChatResponse struct {
	ChatID  int64 `json:"chat_id"`
	Created bool  `json:"created"`
}

// MessagePreviewResponse is the last-message excerpt in a chat summary.
type MessagePreviewResponse struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ChatSummaryResponse represents one entry of the chat list.
type ChatSummaryResponse struct {
	ID          int64                   `json:"id"`
	Name        string                  `json:"name"`
	IsGroup     bool                    `json:"is_group"`
	Avatar      string                  `json:"avatar,omitempty"`
	IsOnline    bool                    `json:"is_online"`
	LastMessage *MessagePreviewResponse `json:"last_message,omitempty"`
	UnreadCount int64                   `json:"unread_count"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID          int64               `json:"id"`
	ChatID      int64               `json:"chat_id"`
	Content     string              `json:"content"`
	Type        string              `json:"type"`
	ReplyTo     *int64              `json:"reply_to,omitempty"`
	IsForwarded bool                `json:"is_forwarded,omitempty"`
	Sender      UserSummaryResponse `json:"sender"`
	Status      string              `json:"status"`
	Timestamp   string              `json:"timestamp"`
}

// ListChats lists chat summaries for the viewer.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chats, err := h.store.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list chats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ChatSummaryResponse, 0, len(chats))
	for _, chat := range chats {
		entry := ChatSummaryResponse{
			ID:          chat.ID,
			Name:        chat.Name,
			IsGroup:     chat.IsGroup,
			Avatar:      chat.Avatar,
			IsOnline:    chat.PeerOnline,
			UnreadCount: chat.UnreadCount,
		}
		if chat.LastMessage != nil {
			entry.LastMessage = &MessagePreviewResponse{
				Content:   chat.LastMessage.Content,
				Timestamp: chat.LastMessage.CreatedAt.Format(time.RFC3339),
			}
		}
		response = append(response, entry)
	}

	c.JSON(http.StatusOK, response)
}

// CreateChat resolves or creates a direct or group chat.
// POST /api/chats
func (h *ChatHandlers) CreateChat(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if !req.IsGroup && req.ParticipantID == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participant_id is required for direct chats"})
		return
	}

	chatID, created, err := h.store.ResolveOrCreateChat(c.Request.Context(), uid, req.ParticipantID, req.IsGroup, req.Name)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to create chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info().Int64("chat_id", chatID).Int64("user_id", uid).Bool("is_group", req.IsGroup).Msg("chat created")
	}
	c.JSON(status, CreateChatResponse{ChatID: chatID, Created: created})
}

// ListMessages lists the chat's recent messages for the viewer and marks them
// read: a fetch acknowledges receipt.
// GET /api/chats/:id/messages
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, readEvent, err := h.pipeline.Fetch(c.Request.Context(), chatID, uid, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotParticipant) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
			return
		}
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// Other participants learn about the read receipt; the viewer already
	// knows, so its own connections are excluded.
	if readEvent != nil {
		h.hub.Publish(chatID, readEvent, uid)
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messageResponse(msg))
	}

	c.JSON(http.StatusOK, response)
}

// SendMessage persists a message and broadcasts it to the chat's room.
// POST /api/chats/:id/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, event, err := h.pipeline.Send(c.Request.Context(), chatID, uid, req.Content, store.MessageType(req.Type), req.ReplyTo)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content is required"})
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotParticipant):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
		default:
			h.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	// Canonical emission: every subscribed connection gets it, the sender's
	// other connections included.
	h.hub.Publish(chatID, event, 0)

	c.JSON(http.StatusCreated, messageResponse(msg))
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Content:     msg.Content,
		Type:        string(msg.Type),
		ReplyTo:     msg.ReplyTo,
		IsForwarded: msg.IsForwarded,
		Sender: UserSummaryResponse{
			ID:       msg.Sender.ID,
			Name:     msg.Sender.Name,
			Avatar:   msg.Sender.Avatar,
			IsOnline: msg.Sender.IsOnline,
		},
		Status:    string(msg.Status),
		Timestamp: msg.CreatedAt.Format(time.RFC3339),
	}
}
