// Package identity provides anonymous per-device identity primitives.
// The user ID is generated once, stored in an HttpOnly cookie, and reused
// across page loads; the associated application ID is minted with the
// user record and never reassigned.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loanifi/loanifi-console/internal/domain"
	"github.com/loanifi/loanifi-console/internal/store"
)

const (
	AnonCookieName      = "loanifi_anon_id"
	ChatKeyHeaderName   = "X-Loanifi-Chat-ID"
	DefaultChatKeyValue = "default"
	anonCookieMaxAge    = 180 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	chatKeyKey
)

var (
	anonIDPattern  = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	chatKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// ChatKeyFromContext extracts the per-tab chat session key from the
// request context.
func ChatKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(chatKeyKey).(string); ok {
		return v
	}
	return DefaultChatKeyValue
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeChatKey(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !chatKeyPattern.MatchString(id) {
		return DefaultChatKeyValue
	}
	return id
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "applicant-" + userID[len(userID)-8:]
	}
	return "applicant"
}

// ensureUser creates the durable user record on first contact. The
// application ID is minted here exactly once and reused forever after.
func ensureUser(ctx context.Context, repo store.Repository, userID, language string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user != nil {
		return nil
	}

	now := time.Now()
	return repo.UpsertUser(ctx, &domain.User{
		UserID:        userID,
		Username:      deriveUsername(userID),
		ApplicationID: uuid.New().String(),
		Language:      language,
		LastSeenAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}

	setAnonCookie(w, id, isDev)
	return id, nil
}

func setAnonCookie(w http.ResponseWriter, value string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func chatKeyFromRequest(r *http.Request) string {
	key := r.Header.Get(ChatKeyHeaderName)
	if key == "" {
		key = r.URL.Query().Get("chat_id")
	}
	return sanitizeChatKey(key)
}

// Middleware injects anonymous per-device identity and per-request chat
// session key.
func Middleware(repo store.Repository, defaultLanguage string, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureUser(r.Context(), repo, userID, defaultLanguage); err != nil {
				http.Error(w, `{"error":"failed to initialize anonymous user"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, usernameKey, deriveUsername(userID))
			ctx = context.WithValue(ctx, chatKeyKey, chatKeyFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
