package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/loanifi/loanifi-console/internal/config"
	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/identity"
)

// EventsHandler streams state transitions to the browser over SSE so
// the view can redraw without polling.
type EventsHandler struct {
	broker            *events.Broker
	keepaliveInterval time.Duration
	retryDelay        time.Duration
}

// NewEventsHandler creates an SSE events handler.
func NewEventsHandler(broker *events.Broker, cfg *config.Config) *EventsHandler {
	keepalive := 30 * time.Second
	retry := 5 * time.Second
	if cfg != nil {
		if cfg.SSE.KeepaliveInterval > 0 {
			keepalive = cfg.SSE.KeepaliveInterval
		}
		if cfg.SSE.RetryDelay > 0 {
			retry = cfg.SSE.RetryDelay
		}
	}
	return &EventsHandler{
		broker:            broker,
		keepaliveInterval: keepalive,
		retryDelay:        retry,
	}
}

// RegisterRoutes registers the events route.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events", h.Stream)
}

// Stream subscribes the caller to their own event feed and forwards
// every published transition. Keepalive comments hold idle proxies
// open; delivery is best-effort and a reconnecting client re-fetches
// state from the snapshot endpoints.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
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

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.retryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "user_id", userID)
		return
	}
	flusher.Flush()

	ch, cancel := h.broker.Subscribe(userID)
	defer cancel()

	slog.Info("event stream connected", "user_id", userID)
	defer slog.Info("event stream disconnected", "user_id", userID)

	keepalive := time.NewTicker(h.keepaliveInterval)
	defer keepalive.Stop()

	var eventID int64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("failed to marshal event", "error", err, "type", ev.Type)
				continue
			}
			eventID++
			if err := writeSSEWithID(w, eventID, string(ev.Type), string(data)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
