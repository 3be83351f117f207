package core

import "github.com/mkazansky/dialogd/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventRecentMessages delivers the backfill snapshot to a session on connect.
	EventRecentMessages EventKind = iota
	// EventChatMessage notifies the group about a persisted chat message.
	EventChatMessage
	// EventTypingStatus is an ephemeral typing indicator, never persisted.
	EventTypingStatus
	// EventMessagesRead notifies the group which message ids became read and by whom.
	EventMessagesRead
	// EventError notifies a single session about a failed inbound event.
	EventError
)

// Event is sent to sessions to describe what happened in the conversation.
// Registry backends serialize it as-is, so every field is exported.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Message    *store.Message   `json:"message,omitempty"`
	Messages   []*store.Message `json:"messages,omitempty"`
	Username   string           `json:"username,omitempty"`
	IsTyping   bool             `json:"is_typing,omitempty"`
	MessageIDs []int64          `json:"message_ids,omitempty"`
	Error      *DomainError     `json:"error,omitempty"`
}
