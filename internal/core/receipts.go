package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/store"
)

// ReceiptService turns an external mark-as-read trigger into a persisted
// state change plus a live broadcast. It talks to the store and the
// registry, never to individual sessions.
type ReceiptService struct {
	store    store.MessageStore
	registry Registry
	log      *zerolog.Logger
}

// NewReceiptService builds a read-receipt coordinator.
func NewReceiptService(st store.MessageStore, registry Registry, logger *zerolog.Logger) *ReceiptService {
	return &ReceiptService{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// MarkAsRead flips is_read on the eligible subset of messageIDs and, when
// anything actually changed, broadcasts a messages_read event to the whole
// group, requester included. A zero update count is success without a
// broadcast.
func (r *ReceiptService) MarkAsRead(ctx context.Context, conversationID int64, messageIDs []int64, requesterID int64, requesterName string) (int64, error) {
	if conversationID == 0 || len(messageIDs) == 0 {
		return 0, ErrBadRequest
	}

	updated, err := r.store.MarkMessagesRead(ctx, conversationID, messageIDs, requesterID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if updated == 0 {
		return 0, nil
	}

	event := &Event{
		Kind:       EventMessagesRead,
		MessageIDs: messageIDs,
		Username:   requesterName,
	}
	if err := r.registry.Broadcast(ctx, GroupKey(conversationID), event); err != nil {
		// State is committed; the receipt just won't reach live sessions.
		r.log.Warn().Err(err).
			Int64("conversation_id", conversationID).
			Msg("failed to broadcast read receipt")
		return updated, nil
	}

	r.log.Debug().
		Int64("conversation_id", conversationID).
		Int64("updated", updated).
		Str("username", requesterName).
		Msg("messages marked read")

	return updated, nil
}
