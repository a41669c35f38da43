package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/monuments-bot/internal/chat"
)

// wsClientMessage is one user turn sent over the WebSocket transport.
type wsClientMessage struct {
	Query string `json:"query"`
}

// wsServerMessage mirrors the SSE protocol as JSON frames: a sequence of
// fragment frames, then a done frame, with terminated set when verification
// completed on this turn.
type wsServerMessage struct {
	Type       string `json:"type"` // "fragment", "done", "error"
	Content    string `json:"content,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
}

// HandleWebSocket handles GET /ws/chat?thread_id=. Same turn protocol as the
// SSE endpoint, but the connection stays open across turns.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		Error(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if h.sessions.Get(threadID) == nil {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "thread_id", threadID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "thread_id", threadID, "error", closeErr)
		}
	}()

	slog.Info("WebSocket chat connected", "thread_id", threadID, "ip", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			slog.Debug("WebSocket read ended", "thread_id", threadID, "error", err)
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Query == "" {
			if err := h.writeWS(ctx, ws, wsServerMessage{Type: "error", Content: "query is required"}); err != nil {
				return
			}
			continue
		}

		if done := h.wsTurn(ctx, ws, threadID, msg.Query); done {
			return
		}
	}
}

// wsTurn runs one turn and streams it to the client. It reports true when
// the connection should close (session gone or write failure).
func (h *Handler) wsTurn(ctx context.Context, ws *websocket.Conn, threadID, query string) bool {
	res, err := h.orch.Turn(ctx, threadID, query)
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		_ = h.writeWS(ctx, ws, wsServerMessage{Type: "error", Content: "Session not found"})
		return true
	case errors.Is(err, chat.ErrSessionTerminated):
		_ = h.writeWS(ctx, ws, wsServerMessage{Type: "error", Content: "Session has been terminated", Terminated: true})
		return true
	case err != nil:
		slog.Error("Chat turn failed", "thread_id", threadID, "error", err)
		_ = h.writeWS(ctx, ws, wsServerMessage{Type: "error", Content: "internal error"})
		return false
	}

	for fragment := range res.Stream {
		if err := h.writeWS(ctx, ws, wsServerMessage{Type: "fragment", Content: fragment}); err != nil {
			slog.Debug("WebSocket write failed mid-stream", "thread_id", threadID, "error", err)
			return true
		}
	}

	if err := h.writeWS(ctx, ws, wsServerMessage{Type: "done", Terminated: res.Terminated}); err != nil {
		return true
	}
	return res.Terminated
}

func (h *Handler) writeWS(ctx context.Context, ws *websocket.Conn, msg wsServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
