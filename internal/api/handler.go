// Package api provides the HTTP surface of the monuments bot.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/monuments-bot/internal/chat"
	"github.com/ashureev/monuments-bot/internal/session"
	"github.com/ashureev/monuments-bot/internal/store"
	"github.com/ashureev/monuments-bot/web"
)

// sessionTerminatedMarker is the final SSE payload when a turn completes
// email verification. The browser closes the stream on seeing it.
const sessionTerminatedMarker = "__SESSION_TERMINATED__"

// Handler serves the chat page, the streaming chat endpoint and session
// management routes.
type Handler struct {
	orch     *chat.Orchestrator
	sessions *session.Manager
	repo     store.Repository
	page     *template.Template
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(orch *chat.Orchestrator, sessions *session.Manager, repo store.Repository) *Handler {
	return &Handler{
		orch:     orch,
		sessions: sessions,
		repo:     repo,
		page:     web.ChatPage(),
	}
}

// RegisterRoutes registers all chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleHome)
	r.Get("/chat", h.HandleChat)
	r.Get("/ws/chat", h.HandleWebSocket)
	r.Get("/session-status/{threadID}", h.HandleSessionStatus)
	r.Delete("/session/{threadID}", h.HandleDeleteSession)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HandleHome handles GET /. Every visit starts a fresh conversation thread.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	threadID := uuid.NewString()
	if _, err := h.sessions.Create(threadID); err != nil {
		slog.Error("Failed to create session", "thread_id", threadID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("New chat session", "thread_id", threadID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, struct{ ThreadID string }{ThreadID: threadID}); err != nil {
		slog.Error("Failed to render chat page", "thread_id", threadID, "error", err)
	}
}

// HandleChat handles GET /chat?query=&thread_id=. One user turn, streamed
// back as SSE data events.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	threadID := r.URL.Query().Get("thread_id")
	if query == "" || threadID == "" {
		Error(w, http.StatusBadRequest, "query and thread_id are required")
		return
	}

	res, err := h.orch.Turn(r.Context(), threadID, query)
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, chat.ErrSessionTerminated):
		Error(w, http.StatusForbidden, "Session has been terminated")
		return
	case err != nil:
		slog.Error("Chat turn failed", "thread_id", threadID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for fragment := range res.Stream {
		if err := writeSSEData(w, fragment); err != nil {
			slog.Warn("Failed to write SSE fragment", "thread_id", threadID, "error", err)
			return
		}
		flusher.Flush()
	}

	if res.Terminated {
		if err := writeSSEData(w, sessionTerminatedMarker); err != nil {
			slog.Warn("Failed to write SSE termination marker", "thread_id", threadID, "error", err)
			return
		}
		flusher.Flush()
	}
}

// HandleSessionStatus handles GET /session-status/{threadID}.
func (h *Handler) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	s := h.sessions.Get(threadID)
	if s == nil {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}

	JSON(w, http.StatusOK, s)
}

// HandleDeleteSession handles DELETE /session/{threadID}. The session and
// its transcript are removed so a reloaded page starts clean.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	h.sessions.Remove(threadID)
	deleted, err := h.repo.DeleteThread(r.Context(), threadID)
	if err != nil {
		slog.Warn("Failed to delete transcript", "thread_id", threadID, "error", err)
	} else if deleted > 0 {
		slog.Info("Transcript deleted", "thread_id", threadID, "turns", deleted)
	}

	JSON(w, http.StatusOK, map[string]string{"message": "Session cleaned up"})
}

// writeSSEData writes one SSE message. Multi-line payloads become one
// data: line per text line so EventSource reassembles them with newlines.
func writeSSEData(w io.Writer, data string) error {
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
