package proto

import (
	"time"

	"github.com/mkazansky/dialogd/internal/store"
)

// Frame type discriminators. Inbound frames missing a type default to
// chat_message.
const (
	TypeChatMessage    = "chat_message"
	TypeTyping         = "typing"
	TypeRecentMessages = "recent_messages"
	TypeTypingStatus   = "typing_status"
	TypeMessagesRead   = "messages_read"
	TypeError          = "error"
)

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// MessageView is the wire form of a persisted message.
type MessageView struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	IsRead    bool   `json:"is_read"`
}

// ViewFromMessage converts a stored message to its wire form.
func ViewFromMessage(msg *store.Message) MessageView {
	return MessageView{
		ID:        msg.ID,
		Sender:    msg.SenderName,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt.Format(time.RFC3339),
		IsRead:    msg.IsRead,
	}
}

// RecentMessagesFrame delivers the backfill snapshot after connect.
type RecentMessagesFrame struct {
	Type     string        `json:"type"`
	Messages []MessageView `json:"messages"`
}

// ChatMessageFrame carries one persisted message to the group.
type ChatMessageFrame struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

// TypingStatusFrame is the ephemeral typing indicator.
type TypingStatusFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// MessagesReadFrame notifies which message ids became read and by whom.
type MessagesReadFrame struct {
	Type           string  `json:"type"`
	MessageIDs     []int64 `json:"message_ids"`
	SenderUsername string  `json:"sender_username"`
}

// ErrorFrame reports a failed inbound event to its originating session.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: msg}
}
