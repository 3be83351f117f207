package http

import (
	"github.com/mkazansky/dialogd/internal/core"
	"github.com/mkazansky/dialogd/internal/proto"
	"github.com/mkazansky/dialogd/internal/store"
)

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventChatMessage:
		return proto.ChatMessageFrame{
			Type:    proto.TypeChatMessage,
			Message: proto.ViewFromMessage(event.Message),
		}
	case core.EventTypingStatus:
		return proto.TypingStatusFrame{
			Type:     proto.TypeTypingStatus,
			Username: event.Username,
			IsTyping: event.IsTyping,
		}
	case core.EventMessagesRead:
		return proto.MessagesReadFrame{
			Type:           proto.TypeMessagesRead,
			MessageIDs:     event.MessageIDs,
			SenderUsername: event.Username,
		}
	case core.EventRecentMessages:
		return recentMessagesFrame(event.Messages)
	case core.EventError:
		if event.Error == nil {
			return proto.NewErrorFrame("unknown error")
		}
		return proto.NewErrorFrame(event.Error.Message)
	default:
		return proto.NewErrorFrame("unknown event")
	}
}

func recentMessagesFrame(messages []*store.Message) proto.RecentMessagesFrame {
	views := make([]proto.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, proto.ViewFromMessage(msg))
	}
	return proto.RecentMessagesFrame{
		Type:     proto.TypeRecentMessages,
		Messages: views,
	}
}
