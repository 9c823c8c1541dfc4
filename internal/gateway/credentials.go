package gateway

import (
	"sync"
)

// CredentialStore holds the bearer credential attached to outbound calls.
// A 401 response clears it; the view layer is responsible for obtaining a
// new one.
type CredentialStore interface {
	// Token returns the current credential, or "" when none is held.
	Token() string

	// Clear discards the stored credential.
	Clear()
}

// MemoryCredentials is an in-process CredentialStore.
type MemoryCredentials struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryCredentials creates a credential store seeded with an initial
// token. An empty token means calls go out unauthenticated.
func NewMemoryCredentials(token string) *MemoryCredentials {
	return &MemoryCredentials{token: token}
}

// Token returns the current credential.
func (c *MemoryCredentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Set replaces the stored credential.
func (c *MemoryCredentials) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Clear discards the stored credential.
func (c *MemoryCredentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
