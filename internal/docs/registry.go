package docs

import (
	"log/slog"
	"sync"

	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/gateway"
)

// Registry hands out one Pipeline per user, created on first use.
type Registry struct {
	backend gateway.Backend
	store   DocumentStore
	broker  *events.Broker
	logger  *slog.Logger

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// NewRegistry creates a pipeline registry.
func NewRegistry(backend gateway.Backend, store DocumentStore, broker *events.Broker, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend:   backend,
		store:     store,
		broker:    broker,
		logger:    logger,
		pipelines: make(map[string]*Pipeline),
	}
}

// Get returns the pipeline for a user, creating it on first use.
func (r *Registry) Get(userID, applicationID string) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pipelines[userID]; ok {
		return p
	}
	p := NewPipeline(userID, applicationID, r.backend, r.store, r.broker, r.logger)
	r.pipelines[userID] = p
	return p
}
