// Command ws_chat is an interactive terminal client for a dialogd
// conversation. It logs in over HTTP, dials the conversation's
// WebSocket endpoint and bridges stdin to chat_message frames.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mkazansky/dialogd/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "", "username")
	pass := flag.String("pass", "", "password")
	conversation := flag.Int64("conversation", 0, "conversation id to join")
	flag.Parse()

	if *user == "" || *pass == "" || *conversation == 0 {
		return errors.New("usage: ws_chat -user NAME -pass SECRET -conversation ID")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := login(ctx, *server, *user, *pass)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*server, "http", "ws", 1)
	dialURL := fmt.Sprintf("%s/ws/%d?token=%s", wsURL, *conversation, token)

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to conversation %d as %s\n", *conversation, *user)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// login authenticates against the REST API, registering the user first
// when the account does not exist yet.
func login(ctx context.Context, server, user, pass string) (string, error) {
	token, status, err := postAuth(ctx, server+"/api/login", user, pass)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		token, status, err = postAuth(ctx, server+"/api/register", user, pass)
		if err != nil {
			return "", err
		}
	}
	if token == "" {
		return "", fmt.Errorf("auth failed with status %d", status)
	}
	return token, nil
}

func postAuth(ctx context.Context, url, user, pass string) (string, int, error) {
	body, err := json.Marshal(map[string]string{"username": user, "password": pass})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	var authResp struct {
		Token string `json:"token"`
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
			return "", resp.StatusCode, fmt.Errorf("decode auth response: %w", err)
		}
	}
	return authResp.Token, resp.StatusCode, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			log.Printf("unmarshal frame: %v", err)
			continue
		}

		switch head.Type {
		case proto.TypeRecentMessages:
			var frame proto.RecentMessagesFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("unmarshal recent_messages: %v", err)
				continue
			}
			for _, msg := range frame.Messages {
				printMessage(msg)
			}
		case proto.TypeChatMessage:
			var frame proto.ChatMessageFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("unmarshal chat_message: %v", err)
				continue
			}
			printMessage(frame.Message)
		case proto.TypeTypingStatus:
			var frame proto.TypingStatusFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("unmarshal typing_status: %v", err)
				continue
			}
			if frame.IsTyping {
				fmt.Printf("* %s is typing...\n", frame.Username)
			}
		case proto.TypeMessagesRead:
			var frame proto.MessagesReadFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("unmarshal messages_read: %v", err)
				continue
			}
			fmt.Printf("* %s read %d message(s)\n", frame.SenderUsername, len(frame.MessageIDs))
		case proto.TypeError:
			var frame proto.ErrorFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				log.Printf("unmarshal error frame: %v", err)
				continue
			}
			fmt.Printf("! server error: %s\n", frame.Message)
		default:
			fmt.Printf("unknown frame: %s\n", raw)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			frame := proto.Inbound{Type: proto.TypeChatMessage, Message: text}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Printf("send: %v", err)
				return
			}
		}
	}
}

func printMessage(msg proto.MessageView) {
	marker := " "
	if msg.IsRead {
		marker = "✓"
	}
	fmt.Printf("[%s] %s %s: %s\n", msg.Timestamp, marker, msg.Sender, msg.Content)
}
