package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mkazansky/dialogd/internal/proto"
)

// testFrame is a loose union of all outbound frame shapes. Message is
// raw because chat_message carries an object there and error a string.
type testFrame struct {
	Type           string              `json:"type"`
	Message        json.RawMessage     `json:"message,omitempty"`
	Messages       []proto.MessageView `json:"messages,omitempty"`
	Username       string              `json:"username,omitempty"`
	IsTyping       bool                `json:"is_typing,omitempty"`
	MessageIDs     []int64             `json:"message_ids,omitempty"`
	SenderUsername string              `json:"sender_username,omitempty"`
}

func (f testFrame) messageView(t *testing.T) proto.MessageView {
	t.Helper()
	var view proto.MessageView
	if err := json.Unmarshal(f.Message, &view); err != nil {
		t.Fatalf("unmarshal message view from %s frame: %v", f.Type, err)
	}
	return view
}

func dialWS(t *testing.T, ctx context.Context, env *testEnv, conversationID int64, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + fmt.Sprintf("/ws/%d?token=%s", conversationID, token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	return conn
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, wantType string) testFrame {
	t.Helper()

	var frame testFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame (want %s): %v", wantType, err)
	}
	if frame.Type != wantType {
		t.Fatalf("expected frame type %s, got %s", wantType, frame.Type)
	}
	return frame
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestConversationScenario(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, aliceToken := env.registerUser(t, "alice")
	bob, bobToken := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	aliceConn := dialWS(t, ctx, env, conv.ID, aliceToken)
	bobConn := dialWS(t, ctx, env, conv.ID, bobToken)

	// Both connect to an empty conversation: empty backfill each.
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		backfill := readFrame(t, ctx, conn, proto.TypeRecentMessages)
		if len(backfill.Messages) != 0 {
			t.Fatalf("expected empty backfill, got %d messages", len(backfill.Messages))
		}
	}

	// Alice sends; both sockets get the canonical persisted form.
	if err := wsjson.Write(ctx, aliceConn, proto.Inbound{Type: proto.TypeChatMessage, Message: "hi", Username: "alice"}); err != nil {
		t.Fatalf("send chat_message: %v", err)
	}

	var messageID int64
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		frame := readFrame(t, ctx, conn, proto.TypeChatMessage)
		view := frame.messageView(t)
		if view.Sender != "alice" || view.Content != "hi" || view.IsRead {
			t.Fatalf("unexpected message view: %+v", view)
		}
		if view.ID == 0 {
			t.Fatalf("expected assigned message id")
		}
		messageID = view.ID
	}

	// The broadcast id matches the stored row.
	stored, err := env.store.RecentMessages(ctx, conv.ID, 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != messageID {
		t.Fatalf("store row mismatch: %+v", stored)
	}

	// Bob marks it read over HTTP; both sockets hear about it.
	body, _ := json.Marshal(MarkAsReadRequest{MessageIDs: []int64{messageID}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/conversations/%d/read", env.ts.URL, conv.ID), bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+bobToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("mark as read request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var markResp MarkAsReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&markResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if markResp.Status != "success" || markResp.UpdatedCount != 1 {
		t.Fatalf("unexpected response: %+v", markResp)
	}

	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		frame := readFrame(t, ctx, conn, proto.TypeMessagesRead)
		if frame.SenderUsername != "bob" {
			t.Fatalf("expected sender_username bob, got %q", frame.SenderUsername)
		}
		if len(frame.MessageIDs) != 1 || frame.MessageIDs[0] != messageID {
			t.Fatalf("unexpected message ids: %v", frame.MessageIDs)
		}
	}
}

func TestBackfillDeliveredOnConnect(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, aliceToken := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := env.store.AppendMessage(ctx, conv.ID, bob.ID, text); err != nil {
			t.Fatalf("append %q: %v", text, err)
		}
	}

	conn := dialWS(t, ctx, env, conv.ID, aliceToken)
	backfill := readFrame(t, ctx, conn, proto.TypeRecentMessages)

	if len(backfill.Messages) != 3 {
		t.Fatalf("expected 3 backfill messages, got %d", len(backfill.Messages))
	}
	want := []string{"one", "two", "three"}
	for i, view := range backfill.Messages {
		if view.Content != want[i] {
			t.Errorf("backfill %d: expected %q, got %q", i, want[i], view.Content)
		}
		if _, err := time.Parse(time.RFC3339, view.Timestamp); err != nil {
			t.Errorf("backfill %d: bad timestamp %q: %v", i, view.Timestamp, err)
		}
	}
}

func TestTypingBroadcastWithoutPersistence(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, aliceToken := env.registerUser(t, "alice")
	bob, bobToken := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	aliceConn := dialWS(t, ctx, env, conv.ID, aliceToken)
	bobConn := dialWS(t, ctx, env, conv.ID, bobToken)
	readFrame(t, ctx, aliceConn, proto.TypeRecentMessages)
	readFrame(t, ctx, bobConn, proto.TypeRecentMessages)

	if err := wsjson.Write(ctx, aliceConn, proto.Inbound{Type: proto.TypeTyping, Username: "alice", IsTyping: true}); err != nil {
		t.Fatalf("send typing: %v", err)
	}

	frame := readFrame(t, ctx, bobConn, proto.TypeTypingStatus)
	if frame.Username != "alice" || !frame.IsTyping {
		t.Fatalf("unexpected typing frame: %+v", frame)
	}

	stored, err := env.store.RecentMessages(ctx, conv.ID, 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("typing created %d store rows", len(stored))
	}
}

func TestNonParticipantConnectionRejected(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, _ := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	_, eveToken := env.registerUser(t, "eve")

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + fmt.Sprintf("/ws/%d?token=%s", conv.ID, eveToken)
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "unexpected")
		t.Fatalf("expected dial to fail for non-participant")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before any data, got %+v", resp)
	}
}

func TestUnknownInboundTypeKeepsConnectionOpen(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, aliceToken := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	conn := dialWS(t, ctx, env, conv.ID, aliceToken)
	readFrame(t, ctx, conn, proto.TypeRecentMessages)

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "selfdestruct"}); err != nil {
		t.Fatalf("send unknown frame: %v", err)
	}

	errFrame := readFrame(t, ctx, conn, proto.TypeError)
	if len(errFrame.Message) == 0 {
		t.Fatalf("expected error message")
	}

	// Still usable afterwards.
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.TypeChatMessage, Message: "still here"}); err != nil {
		t.Fatalf("send after error: %v", err)
	}
	frame := readFrame(t, ctx, conn, proto.TypeChatMessage)
	if frame.messageView(t).Content != "still here" {
		t.Fatalf("unexpected message after error frame")
	}
}

func TestMalformedInboundFrameKeepsConnectionOpen(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice, aliceToken := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	conn := dialWS(t, ctx, env, conv.ID, aliceToken)
	readFrame(t, ctx, conn, proto.TypeRecentMessages)

	// Each undecodable frame draws an error frame; none of them closes
	// the connection.
	for _, raw := range []string{"{not json", `"just a string"`} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
			t.Fatalf("send %q: %v", raw, err)
		}
		errFrame := readFrame(t, ctx, conn, proto.TypeError)
		if len(errFrame.Message) == 0 {
			t.Fatalf("expected error message for %q", raw)
		}
	}

	// Still usable afterwards.
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.TypeChatMessage, Message: "survived"}); err != nil {
		t.Fatalf("send after garbage: %v", err)
	}
	frame := readFrame(t, ctx, conn, proto.TypeChatMessage)
	if frame.messageView(t).Content != "survived" {
		t.Fatalf("unexpected message after malformed frames")
	}
}

func TestWSRejectsInvalidToken(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, _ := env.registerUser(t, "alice")
	bob, _ := env.registerUser(t, "bob")
	conv := env.createConversation(t, alice.ID, bob.ID)

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + fmt.Sprintf("/ws/%d?token=garbage", conv.ID)
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "unexpected")
		t.Fatalf("expected dial to fail with bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}
