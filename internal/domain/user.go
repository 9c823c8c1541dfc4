// Package domain contains core domain types for the LoaniFi console.
package domain

import (
	"time"
)

// User represents an anonymous end user with their durable identity state.
// The user ID is minted once per device and reused across page loads; the
// application ID is minted once per user and carried on every document upload.
type User struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	ApplicationID string    `json:"application_id"`
	Language      string    `json:"language"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
