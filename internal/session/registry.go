package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/gateway"
)

// Registry hands out one Manager per (user, chat key) pair. Managers are
// created on first use and seeded with the greeting; Reset destroys one,
// which is how a "new session" begins.
type Registry struct {
	backend    gateway.Backend
	msgs       MessageStore
	broker     *events.Broker
	transcript *Transcript
	language   string
	logger     *slog.Logger

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates a session registry.
func NewRegistry(backend gateway.Backend, msgs MessageStore, broker *events.Broker, transcript *Transcript, language string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend:    backend,
		msgs:       msgs,
		broker:     broker,
		transcript: transcript,
		language:   language,
		logger:     logger,
		managers:   make(map[string]*Manager),
	}
}

func sessionKey(userID, chatKey string) string {
	return userID + ":" + chatKey
}

// Get returns the manager for a (user, chat key) pair, creating and
// starting it on first use.
func (r *Registry) Get(userID, chatKey string) *Manager {
	key := sessionKey(userID, chatKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	if mgr, ok := r.managers[key]; ok {
		return mgr
	}

	mgr := NewManager(userID, chatKey, r.language, r.backend, r.msgs, r.broker, r.transcript, r.logger)
	if err := mgr.Start(); err != nil {
		// Start on a fresh manager cannot fail; log it if it ever does.
		r.logger.Error("failed to seed new session", "user_id", userID, "chat_key", chatKey, "error", err)
	}
	r.managers[key] = mgr
	return mgr
}

// Reset destroys the manager for a pair and clears its persisted history.
// The next Get starts a fresh session with a new greeting.
func (r *Registry) Reset(ctx context.Context, userID, chatKey string) error {
	key := sessionKey(userID, chatKey)

	r.mu.Lock()
	delete(r.managers, key)
	r.mu.Unlock()

	if r.msgs != nil {
		if err := r.msgs.ClearHistory(ctx, userID, chatKey); err != nil {
			return fmt.Errorf("clear session history: %w", err)
		}
	}
	return nil
}
