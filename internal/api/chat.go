package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/loanifi/loanifi-console/internal/config"
	"github.com/loanifi/loanifi-console/internal/identity"
	"github.com/loanifi/loanifi-console/internal/session"
	"github.com/loanifi/loanifi-console/internal/store"
)

// ChatHandler exposes the conversation session manager over HTTP.
type ChatHandler struct {
	sessions    *session.Registry
	repo        store.Repository
	rateLimiter *RateLimiter
	maxBodySize int64
}

// NewChatHandler creates a chat handler.
func NewChatHandler(sessions *session.Registry, repo store.Repository, cfg *config.Config) *ChatHandler {
	limit, window := 20, time.Minute
	maxBody := int64(1 << 20)
	if cfg != nil {
		if cfg.RateLimit.RequestsPerWindow > 0 {
			limit = cfg.RateLimit.RequestsPerWindow
		}
		if cfg.RateLimit.WindowDuration > 0 {
			window = cfg.RateLimit.WindowDuration
		}
		if cfg.SSE.MaxRequestBodySize > 0 {
			maxBody = cfg.SSE.MaxRequestBodySize
		}
	}
	return &ChatHandler{
		sessions:    sessions,
		repo:        repo,
		rateLimiter: NewRateLimiter(limit, window),
		maxBodySize: maxBody,
	}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/message", h.SendMessage)
		r.Get("/session", h.Session)
		r.Get("/history", h.History)
		r.Post("/reset", h.Reset)
	})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage drives one conversation turn and returns the resulting
// session state. A backend failure still returns the state: the log
// carries the system failure notice, never a stuck spinner.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	chatKey := identity.ChatKeyFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mgr := h.sessions.Get(userID, chatKey)

	slog.Info("chat message received",
		"user_id", userID,
		"chat_key", chatKey,
		"message_length", len(req.Message),
	)

	err := mgr.Send(r.Context(), req.Message)
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "message is required")
		return
	case errors.Is(err, session.ErrSendInFlight):
		Error(w, http.StatusConflict, "a message is already being processed")
		return
	}

	// Backend failures are already rendered into the log as a system
	// notice; the state is the answer either way.
	JSON(w, http.StatusOK, mgr.State())
}

// Session returns the current in-memory session state.
func (h *ChatHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	chatKey := identity.ChatKeyFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, h.sessions.Get(userID, chatKey).State())
}

// History returns the persisted conversation audit log.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	chatKey := identity.ChatKeyFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	messages, err := h.repo.History(r.Context(), userID, chatKey, 0)
	if err != nil {
		slog.Error("failed to load history", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"chat_key": chatKey,
		"messages": messages,
	})
}

// Reset destroys the session; the next message starts a fresh one.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	chatKey := identity.ChatKeyFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.sessions.Reset(r.Context(), userID, chatKey); err != nil {
		slog.Error("failed to reset session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
