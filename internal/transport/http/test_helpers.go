package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/auth"
	"github.com/mkazansky/dialogd/internal/config"
	"github.com/mkazansky/dialogd/internal/core"
	"github.com/mkazansky/dialogd/internal/store"
	"github.com/mkazansky/dialogd/internal/store/sqlite"
)

// testEnv bundles the wired services behind a running test server.
type testEnv struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
}

// startTestServer wires the full stack (in-memory sqlite, in-process
// registry) behind an httptest server.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	logger := zerolog.Nop()
	registry := core.NewMemoryRegistry()
	chat := core.NewChatService(st, registry, &logger, 50)
	receipts := core.NewReceiptService(st, registry, &logger)

	server := NewServer(chat, receipts, authService, st, config.Config{
		Addr:              ":0",
		SessionBuffer:     32,
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService}
}

// registerUser registers a user and returns the user row plus a token.
func (env *testEnv) registerUser(t *testing.T, username string) (*store.User, string) {
	t.Helper()
	ctx := context.Background()

	token, err := env.auth.Register(ctx, username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}

	user, err := env.store.GetUserByUsername(ctx, username)
	if err != nil {
		t.Fatalf("look up %s: %v", username, err)
	}

	return user, token
}

// createConversation creates a conversation between the given users.
func (env *testEnv) createConversation(t *testing.T, userIDs ...int64) *store.Conversation {
	t.Helper()

	conv, err := env.store.CreateConversation(context.Background(), userIDs...)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}
