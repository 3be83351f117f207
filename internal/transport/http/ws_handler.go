package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/auth"
	"github.com/mkazansky/dialogd/internal/core"
	"github.com/mkazansky/dialogd/internal/proto"
	"github.com/mkazansky/dialogd/internal/store"
)

// WSHandler upgrades HTTP connections into conversation sessions. It is
// a plain stdhttp.Handler mounted outside gin: the upgrade hijacks the
// underlying connection, which gin's response writer refuses once the
// 101 header has been staged.
type WSHandler struct {
	chat   *core.ChatService
	auth   *auth.Service
	log    *zerolog.Logger
	buffer int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(chat *core.ChatService, authService *auth.Service, logger *zerolog.Logger, buffer int) *WSHandler {
	return &WSHandler{chat: chat, auth: authService, log: logger, buffer: buffer}
}

// ServeHTTP authorizes, joins, and runs one connection session.
// GET /ws/{conversationID}
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		writeJSONError(w, stdhttp.StatusUnauthorized, "missing auth token")
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("invalid ws token")
		writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
		return
	}

	conversationID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/ws/"), 10, 64)
	if err != nil {
		writeJSONError(w, stdhttp.StatusBadRequest, "invalid conversation id")
		return
	}

	sess := core.NewSession(conversationID, claims.UserID, claims.Username, h.buffer)

	// Membership is checked (and the group joined) before the upgrade,
	// so a non-participant is turned away before any data goes out.
	backfill, err := h.chat.Connect(r.Context(), sess)
	if err != nil {
		if errors.Is(err, store.ErrNotParticipant) {
			writeJSONError(w, stdhttp.StatusForbidden, "not a participant of this conversation")
			return
		}
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("connect failed")
		writeJSONError(w, stdhttp.StatusInternalServerError, "internal server error")
		return
	}
	// Deferred leave pairs with the join above on every exit path.
	defer h.chat.Disconnect(sess)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The backfill goes out before the write loop starts draining, so
	// it always precedes any broadcast buffered during the handshake.
	if err := wsjson.Write(ctx, conn, recentMessagesFrame(backfill)); err != nil {
		h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("write backfill")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop dispatches inbound frames. Per-event failures, including
// frames that don't decode, produce an error frame for this session
// only and keep the connection open; only transport-level failures end
// the loop.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("undecodable inbound frame")
			if writeErr := h.writeErrorFrame(ctx, conn, sess, core.ErrBadRequest); writeErr != nil {
				return writeErr
			}
			continue
		}

		kind := inbound.Type
		if kind == "" {
			kind = proto.TypeChatMessage
		}

		switch kind {
		case proto.TypeChatMessage:
			msg, err := h.chat.SendMessage(ctx, sess, inbound.Message)
			if err != nil {
				if msg != nil {
					// Persisted but not deliverable: the registry is
					// unreachable, so the connection is done.
					return err
				}
				if writeErr := h.writeErrorFrame(ctx, conn, sess, err); writeErr != nil {
					return writeErr
				}
			}
		case proto.TypeTyping:
			if err := h.chat.Typing(ctx, sess, inbound.IsTyping); err != nil {
				return err
			}
		default:
			h.log.Debug().Str("type", inbound.Type).Str("session_id", sess.ID).Msg("unknown inbound type")
			if writeErr := h.writeErrorFrame(ctx, conn, sess, core.ErrBadRequest); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeErrorFrame(ctx context.Context, conn *websocket.Conn, sess *core.Session, err error) error {
	domErr := core.DomainErrorFor(err)
	h.log.Debug().Err(err).Str("session_id", sess.ID).Str("code", domErr.Code).Msg("inbound event failed")
	return wsjson.Write(ctx, conn, proto.NewErrorFrame(domErr.Message))
}

// writeLoop drains the session's event channel in order.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case event, ok := <-sess.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
