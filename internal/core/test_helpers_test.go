package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/store"
	"github.com/mkazansky/dialogd/internal/store/sqlite"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func assertNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got kind %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func seedConversation(t *testing.T, st store.Store, usernames ...string) (*store.Conversation, []*store.User) {
	t.Helper()
	ctx := context.Background()

	users := make([]*store.User, 0, len(usernames))
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		u, err := st.CreateUser(ctx, name, "hash")
		if err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
		users = append(users, u)
		ids = append(ids, u.ID)
	}

	conv, err := st.CreateConversation(ctx, ids...)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	return conv, users
}
