// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/loanifi/loanifi-console/internal/domain"
)

// Repository defines the interface for persisting users, conversation
// history, and the application document checklist.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// AppendMessage persists one conversation turn entry. Entries are
	// append-only; history preserves insertion order.
	AppendMessage(ctx context.Context, userID, chatKey string, msg domain.Message) error

	// History returns persisted conversation turns in append order.
	// A limit of 0 returns everything.
	History(ctx context.Context, userID, chatKey string, limit int) ([]domain.Message, error)

	// ClearHistory removes the persisted log for one chat session.
	// Called when the user starts a new session.
	ClearHistory(ctx context.Context, userID, chatKey string) error

	// SaveDocument records a successfully submitted checklist document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// ListDocuments returns the checklist for an application, newest first.
	ListDocuments(ctx context.Context, applicationID string) ([]*domain.Document, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
