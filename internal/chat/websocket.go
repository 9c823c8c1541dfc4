// Package chat carries the conversation over a WebSocket: the client
// sends message frames, the server pushes session state transitions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/identity"
	"github.com/loanifi/loanifi-console/internal/session"
	"github.com/loanifi/loanifi-console/internal/store"
)

// WebSocketHandler upgrades the connection and bridges it to the
// session manager.
type WebSocketHandler struct {
	sessions      *session.Registry
	broker        *events.Broker
	repo          store.Repository
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(sessions *session.Registry, broker *events.Broker, repo store.Repository, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:      sessions,
		broker:        broker,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage is an inbound client frame.
type wsMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// wsFrame is an outbound server frame.
type wsFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	chatKey := identity.ChatKeyFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "chat_key", chatKey, "ip", r.RemoteAddr)

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	mgr := h.sessions.Get(userID, chatKey)

	// The first frame is a full state snapshot; transitions follow as
	// events.
	if err := h.writeFrame(ctx, ws, wsFrame{Type: "state", Payload: mgr.State()}); err != nil {
		slog.Debug("Failed to send initial state", "error", err, "user_id", userID)
		return
	}

	ch, unsubscribe := h.broker.Subscribe(userID)
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: client frames -> session manager.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, mgr, userID)
	}()

	// Output loop: broker events -> client frames.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, ch, userID)
	}()

	wg.Wait()
	slog.Info("Chat WebSocket session ended", "user_id", userID, "chat_key", chatKey)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, mgr *session.Manager, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if werr := h.writeFrame(ctx, ws, wsFrame{Type: "error", Error: "invalid frame"}); werr != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "message":
			if err := mgr.Send(ctx, msg.Text); err != nil {
				switch {
				case errors.Is(err, session.ErrEmptyMessage):
					h.writeError(ctx, ws, "message is required")
				case errors.Is(err, session.ErrSendInFlight):
					h.writeError(ctx, ws, "a message is already being processed")
				default:
					// The session log already carries the failure
					// notice and the state event was published.
				}
			}
		case "ping":
			if err := h.writeFrame(ctx, ws, wsFrame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "state":
			if err := h.writeFrame(ctx, ws, wsFrame{Type: "state", Payload: mgr.State()}); err != nil {
				return
			}
		}

		// Update last seen asynchronously with timeout.
		go func() {
			updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.repo.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
				slog.Warn("Failed to update last seen", "error", err)
			}
		}()
	}
}

func (h *WebSocketHandler) outputLoop(ctx context.Context, ws *websocket.Conn, ch <-chan events.Event, userID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := h.writeFrame(ctx, ws, wsFrame{Type: "event", Payload: ev}); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeError(ctx context.Context, ws *websocket.Conn, msg string) {
	if err := h.writeFrame(ctx, ws, wsFrame{Type: "error", Error: msg}); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
