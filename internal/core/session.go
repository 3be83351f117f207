package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Session is one live connection scoped to a single conversation.
// It is ephemeral: created on connect, destroyed on disconnect, and
// registered in the group registry for exactly that window.
type Session struct {
	ID             string
	ConversationID int64
	UserID         int64
	Username       string
	Events         chan *Event
}

// NewSession constructs a session with a fresh handle and a buffered
// event channel. The buffer is the only slack a slow consumer gets:
// the registry drops events rather than block on a full channel.
func NewSession(conversationID, userID int64, username string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 32
	}
	return &Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Username:       username,
		Events:         make(chan *Event, buffer),
	}
}

// GroupKey returns the registry key for a conversation.
func GroupKey(conversationID int64) string {
	return fmt.Sprintf("convo.%d", conversationID)
}
