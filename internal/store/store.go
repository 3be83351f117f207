package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotParticipant is returned when a user is not part of the conversation.
	ErrNotParticipant = errors.New("not a participant")
)

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation represents a chat between a fixed set of participants.
// UpdatedAt is bumped every time a message is appended.
type Conversation struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a persisted chat message. Immutable once created except
// for the IsRead flag, which flips via MarkMessagesRead only.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	CreatedAt      time.Time
	IsRead         bool
}

// ConversationSummary is the listing view of a conversation for one user:
// the other participants plus a last-message preview.
type ConversationSummary struct {
	ID            int64
	Participants  []string
	LastMessage   string
	LastMessageAt time.Time
	UpdatedAt     time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// ConversationStore handles conversation and membership persistence.
type ConversationStore interface {
	// CreateConversation creates a conversation with the given participants.
	CreateConversation(ctx context.Context, participantIDs ...int64) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// FindDirectConversation returns an existing two-person conversation
	// between the given users, or ErrNotFound.
	FindDirectConversation(ctx context.Context, user1ID, user2ID int64) (*Conversation, error)

	// IsParticipant reports whether the user belongs to the conversation.
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)

	// ListConversations lists the user's conversations, most recently
	// updated first, with a last-message preview.
	ListConversations(ctx context.Context, userID int64) ([]*ConversationSummary, error)
}

// MessageStore handles message persistence. It is the single source of
// truth for message identity and ordering.
type MessageStore interface {
	// AppendMessage atomically creates a message and bumps the owning
	// conversation's updated_at. Returns ErrNotFound if the conversation
	// does not exist and ErrNotParticipant if the sender is not a member.
	AppendMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error)

	// RecentMessages returns up to limit most recent messages, oldest
	// first. An unknown conversation yields an empty slice, not an error.
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*Message, error)

	// MarkMessagesRead flips is_read for the given messages, skipping
	// ones already read or sent by the requester. Returns the number of
	// rows actually updated.
	MarkMessagesRead(ctx context.Context, conversationID int64, messageIDs []int64, requesterID int64) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
