package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/core"
	"github.com/mkazansky/dialogd/internal/store"
)

// ConversationHandlers provides the conversation collaborator endpoints
// and the external mark-as-read trigger.
type ConversationHandlers struct {
	store    store.Store
	receipts *core.ReceiptService
	log      *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, receipts *core.ReceiptService, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store:    st,
		receipts: receipts,
		log:      logger,
	}
}

// StartConversationRequest represents the start conversation request body.
type StartConversationRequest struct {
	Username string `json:"username" binding:"required"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID              int64    `json:"id"`
	Participants    []string `json:"participants"`
	LastMessage     string   `json:"last_message"`
	LastMessageTime string   `json:"last_message_time"`
}

// MarkAsReadRequest represents the mark-as-read request body.
type MarkAsReadRequest struct {
	MessageIDs []int64 `json:"message_ids" binding:"required,min=1"`
}

// MarkAsReadResponse represents the mark-as-read response body.
type MarkAsReadResponse struct {
	Status       string `json:"status"`
	UpdatedCount int64  `json:"updated_count"`
}

// StartConversation finds or creates a direct conversation with another user.
// POST /api/conversations
func (h *ConversationHandlers) StartConversation(c *gin.Context) {
	userID, username, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Username == username {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start a conversation with yourself"})
		return
	}

	other, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to look up user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	conv, err := h.store.FindDirectConversation(c.Request.Context(), userID, other.ID)
	if errors.Is(err, store.ErrNotFound) {
		conv, err = h.store.CreateConversation(c.Request.Context(), userID, other.ID)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to start conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ConversationResponse{
		ID:           conv.ID,
		Participants: []string{other.Username},
	})
}

// ListConversations lists the caller's conversations, most recently
// updated first.
// GET /api/conversations
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	userID, _, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	summaries, err := h.store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ConversationResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp := ConversationResponse{
			ID:           sum.ID,
			Participants: sum.Participants,
			LastMessage:  sum.LastMessage,
		}
		if sum.LastMessage != "" {
			resp.LastMessageTime = sum.LastMessageAt.Format(time.RFC3339)
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": response})
}

// MarkAsRead is the external trigger bridging an HTTP request into a
// persisted read-state change plus a live broadcast.
// POST /api/conversations/:id/read
func (h *ConversationHandlers) MarkAsRead(c *gin.Context) {
	userID, username, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
		return
	}

	var req MarkAsReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing message_ids"})
		return
	}

	// No existence check: an unknown conversation simply matches zero
	// rows and reports a zero count.
	updated, err := h.receipts.MarkAsRead(c.Request.Context(), conversationID, req.MessageIDs, userID, username)
	if err != nil {
		if errors.Is(err, core.ErrBadRequest) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing conversation_id or message_ids"})
			return
		}
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to mark messages read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MarkAsReadResponse{Status: "success", UpdatedCount: updated})
}
