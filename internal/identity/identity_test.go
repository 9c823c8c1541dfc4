package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/loanifi/loanifi-console/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMiddlewareMintsIdentityAndCookie(t *testing.T) {
	repo := newTestRepo(t)

	var gotUserID, gotChatKey string
	handler := Middleware(repo, "english", true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotChatKey = ChatKeyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))

	if !isValidAnonID(gotUserID) {
		t.Errorf("Expected minted anon ID, got %q", gotUserID)
	}
	if gotChatKey != DefaultChatKeyValue {
		t.Errorf("Expected default chat key, got %q", gotChatKey)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("Expected identity cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Error("Identity cookie must be HttpOnly")
	}
	if cookie.Value != gotUserID {
		t.Errorf("Cookie value %q does not match context user %q", cookie.Value, gotUserID)
	}

	// The durable user record now exists with a minted application ID.
	user, err := repo.GetUser(context.Background(), gotUserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil {
		t.Fatal("Expected user record after first contact")
	}
	if user.ApplicationID == "" {
		t.Error("Expected minted application ID")
	}
}

func TestMiddlewareReusesCookieIdentity(t *testing.T) {
	repo := newTestRepo(t)

	var firstID, secondID string
	capture := func(target *string) http.Handler {
		return Middleware(repo, "english", true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*target = UserIDFromContext(r.Context())
		}))
	}

	w := httptest.NewRecorder()
	capture(&firstID).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		second.AddCookie(c)
	}
	capture(&secondID).ServeHTTP(httptest.NewRecorder(), second)

	if firstID != secondID {
		t.Errorf("Identity must survive across requests: %q vs %q", firstID, secondID)
	}

	user, err := repo.GetUser(context.Background(), firstID)
	if err != nil || user == nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	firstApp := user.ApplicationID

	// A third request must not mint a new application ID.
	third := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		third.AddCookie(c)
	}
	capture(&secondID).ServeHTTP(httptest.NewRecorder(), third)

	user, err = repo.GetUser(context.Background(), firstID)
	if err != nil || user == nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.ApplicationID != firstApp {
		t.Errorf("Application ID must be minted once: %q vs %q", firstApp, user.ApplicationID)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	repo := newTestRepo(t)

	var gotUserID string
	handler := Middleware(repo, "english", true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../etc/passwd"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotUserID == "../../etc/passwd" {
		t.Error("Forged cookie value must be replaced")
	}
	if !isValidAnonID(gotUserID) {
		t.Errorf("Expected fresh minted ID, got %q", gotUserID)
	}
}

func TestChatKeyFromHeader(t *testing.T) {
	repo := newTestRepo(t)

	var gotChatKey string
	handler := Middleware(repo, "english", true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChatKey = ChatKeyFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ChatKeyHeaderName, "tab-2")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotChatKey != "tab-2" {
		t.Errorf("Expected chat key from header, got %q", gotChatKey)
	}

	// Malformed keys collapse to the default.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ChatKeyHeaderName, "bad key with spaces!!")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotChatKey != DefaultChatKeyValue {
		t.Errorf("Expected default chat key for malformed header, got %q", gotChatKey)
	}
}

func TestSanitizeChatKey(t *testing.T) {
	cases := map[string]string{
		"default":      "default",
		"tab_1":        "tab_1",
		"":             DefaultChatKeyValue,
		"  ":           DefaultChatKeyValue,
		"has space":    DefaultChatKeyValue,
		"semi;colon":   DefaultChatKeyValue,
		"dotted.key-1": "dotted.key-1",
	}
	for input, want := range cases {
		if got := sanitizeChatKey(input); got != want {
			t.Errorf("sanitizeChatKey(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDeriveUsername(t *testing.T) {
	if got := deriveUsername("anon_0123456789abcdef0123456789abcdef"); got != "applicant-89abcdef" {
		t.Errorf("deriveUsername = %q", got)
	}
	if got := deriveUsername("short"); got != "applicant" {
		t.Errorf("deriveUsername(short) = %q", got)
	}
}
