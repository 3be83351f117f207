package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/store"
)

// DefaultBackfillLimit is the size of the recent-message snapshot sent
// to a session right after it joins its conversation.
const DefaultBackfillLimit = 50

// ChatService mediates between connection sessions and the message
// store plus group registry. Persistence strictly precedes broadcast:
// no session ever observes a message that is not durably stored.
type ChatService struct {
	store    store.Store
	registry Registry
	log      *zerolog.Logger
	backfill int
}

// NewChatService builds a chat service. backfill <= 0 falls back to
// DefaultBackfillLimit.
func NewChatService(st store.Store, registry Registry, logger *zerolog.Logger, backfill int) *ChatService {
	if backfill <= 0 {
		backfill = DefaultBackfillLimit
	}
	return &ChatService{
		store:    st,
		registry: registry,
		log:      logger,
		backfill: backfill,
	}
}

// Connect verifies the session's user is a participant, joins the group
// registry, and returns the backfill snapshot. The participant check runs
// before the join and before any data leaves the server, so non-members
// learn nothing about the conversation.
func (c *ChatService) Connect(ctx context.Context, s *Session) ([]*store.Message, error) {
	ok, err := c.store.IsParticipant(ctx, s.ConversationID, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return nil, store.ErrNotParticipant
	}

	if err := c.registry.Join(GroupKey(s.ConversationID), s); err != nil {
		return nil, fmt.Errorf("join group: %w", err)
	}

	messages, err := c.store.RecentMessages(ctx, s.ConversationID, c.backfill)
	if err != nil {
		c.registry.Leave(GroupKey(s.ConversationID), s)
		return nil, fmt.Errorf("backfill: %w", err)
	}

	c.log.Debug().
		Str("session_id", s.ID).
		Int64("conversation_id", s.ConversationID).
		Str("username", s.Username).
		Int("backfill", len(messages)).
		Msg("session connected")

	return messages, nil
}

// Disconnect removes the session from its group. Safe to call on any
// exit path, including abnormal ones; leaving twice is a no-op.
func (c *ChatService) Disconnect(s *Session) {
	c.registry.Leave(GroupKey(s.ConversationID), s)
	c.log.Debug().
		Str("session_id", s.ID).
		Int64("conversation_id", s.ConversationID).
		Msg("session disconnected")
}

// SendMessage re-validates membership, persists the message, and only
// then broadcasts the canonical persisted form to the full group,
// including the sender's own other sessions.
func (c *ChatService) SendMessage(ctx context.Context, s *Session, content string) (*store.Message, error) {
	if content == "" {
		return nil, ErrBadRequest
	}

	msg, err := c.store.AppendMessage(ctx, s.ConversationID, s.UserID, content)
	if err != nil {
		return nil, err
	}

	event := &Event{Kind: EventChatMessage, Message: msg}
	if err := c.registry.Broadcast(ctx, GroupKey(s.ConversationID), event); err != nil {
		// The message is durable; only delivery failed. Surface it so the
		// transport can terminate the connection.
		return msg, fmt.Errorf("broadcast message %d: %w", msg.ID, err)
	}

	return msg, nil
}

// Typing broadcasts an ephemeral typing indicator. It never touches the
// store.
func (c *ChatService) Typing(ctx context.Context, s *Session, isTyping bool) error {
	event := &Event{
		Kind:     EventTypingStatus,
		Username: s.Username,
		IsTyping: isTyping,
	}
	if err := c.registry.Broadcast(ctx, GroupKey(s.ConversationID), event); err != nil {
		return fmt.Errorf("broadcast typing: %w", err)
	}
	return nil
}

// DomainErrorFor maps a service error to the code carried on an error
// frame. Unknown errors map to persist_failed: the store is the only
// collaborator left once validation passed.
func DomainErrorFor(err error) *DomainError {
	switch {
	case errors.Is(err, store.ErrNotParticipant):
		return domainError(ErrCodeNotParticipant, "not a participant of this conversation")
	case errors.Is(err, store.ErrNotFound):
		return domainError(ErrCodeNotFound, "conversation not found")
	case errors.Is(err, ErrBadRequest):
		return domainError(ErrCodeBadRequest, "malformed event payload")
	default:
		return domainError(ErrCodePersistFailed, "failed to persist message")
	}
}
