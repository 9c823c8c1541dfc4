// Package session implements the conversation session manager: an
// append-only message log with identity continuity across turns and an
// at-most-one-in-flight send guard.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loanifi/loanifi-console/internal/domain"
	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/gateway"
)

const (
	greetingText = "Hello! Welcome to LoaniFi. I'm your AI loan assistant. " +
		"How can I help you today? Are you looking for a personal loan?"
	greetingAgent = "master"

	failureNotice = "Sorry, I encountered an error. Please try again."
	authNotice    = "Your session is no longer authenticated. Please sign in again to continue."
)

var (
	// ErrAlreadyStarted is returned when Start is called after the log
	// has been seeded. The greeting is never duplicated.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrEmptyMessage is returned for empty or whitespace-only input.
	// The call has no side effect.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInFlight is returned while a previous send is outstanding.
	// There is no queue: the call has no side effect.
	ErrSendInFlight = errors.New("a send is already in flight")
)

// MessageStore is the slice of the repository the manager needs to keep
// a durable audit log of the conversation.
type MessageStore interface {
	AppendMessage(ctx context.Context, userID, chatKey string, msg domain.Message) error
	History(ctx context.Context, userID, chatKey string, limit int) ([]domain.Message, error)
	ClearHistory(ctx context.Context, userID, chatKey string) error
}

// State is the observable session snapshot published on every transition
// and read by the view layer.
type State struct {
	SessionID string           `json:"session_id,omitempty"`
	Pending   bool             `json:"pending"`
	Messages  []domain.Message `json:"messages"`
}

// Manager owns one conversation session. The message log is append-only
// and mutated only by this manager; the session ID is assigned at most
// once, from the first successful backend response.
type Manager struct {
	userID  string
	chatKey string

	backend    gateway.Backend
	msgs       MessageStore
	broker     *events.Broker
	transcript *Transcript
	logger     *slog.Logger
	language   string

	mu        sync.Mutex
	sessionID string
	messages  []domain.Message
	pending   bool
}

// NewManager creates a session manager for one (user, chat key) pair.
// The store, broker, and transcript may be nil; persistence and
// publication are then skipped.
func NewManager(userID, chatKey, language string, backend gateway.Backend, msgs MessageStore, broker *events.Broker, transcript *Transcript, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		userID:     userID,
		chatKey:    chatKey,
		language:   language,
		backend:    backend,
		msgs:       msgs,
		broker:     broker,
		transcript: transcript,
		logger:     logger,
	}
}

// Start seeds the log with the synthetic agent greeting. It contacts no
// backend. Calling it again once messages exist is a programming error.
func (m *Manager) Start() error {
	m.mu.Lock()
	if len(m.messages) > 0 {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	greeting := domain.Message{
		Role:      domain.RoleAgent,
		Text:      greetingText,
		AgentTag:  greetingAgent,
		Timestamp: time.Now(),
	}
	m.messages = append(m.messages, greeting)
	m.mu.Unlock()

	m.record(greeting, "inbound")
	m.publish()
	return nil
}

// Send submits one user turn. The user message is appended before any
// network activity so the visible log always reflects submission order;
// a backend failure appends a system notice instead of rolling it back.
// The pending flag is cleared on both paths.
func (m *Manager) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	if m.pending {
		m.mu.Unlock()
		return ErrSendInFlight
	}
	m.pending = true
	userMsg := domain.Message{
		Role:      domain.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}
	m.messages = append(m.messages, userMsg)
	sessionID := m.sessionID
	m.mu.Unlock()

	m.record(userMsg, "outbound")
	m.publish()

	resp, err := m.backend.SendMessage(ctx, gateway.ChatRequest{
		Message:        text,
		ConversationID: sessionID,
		UserID:         m.userID,
		Language:       m.language,
	})

	var reply domain.Message
	if err != nil {
		m.logger.Error("chat send failed",
			"user_id", m.userID,
			"chat_key", m.chatKey,
			"error", err,
		)
		notice := failureNotice
		if gateway.IsAuth(err) {
			notice = authNotice
		}
		reply = domain.Message{
			Role:      domain.RoleSystem,
			Text:      notice,
			Timestamp: time.Now(),
			IsError:   true,
		}
	} else {
		reply = domain.Message{
			Role:      domain.RoleAgent,
			Text:      resp.Response,
			AgentTag:  resp.Agent,
			Sentiment: resp.Sentiment,
			Timestamp: time.Now(),
		}
	}

	m.mu.Lock()
	m.messages = append(m.messages, reply)
	if err == nil && m.sessionID == "" && resp.ConversationID != "" {
		m.sessionID = resp.ConversationID
	}
	m.pending = false
	m.mu.Unlock()

	m.record(reply, "inbound")
	m.publish()
	return err
}

// State returns a snapshot of the session. The returned message slice is
// a copy; the log itself is never handed out.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]domain.Message, len(m.messages))
	copy(msgs, m.messages)
	return State{
		SessionID: m.sessionID,
		Pending:   m.pending,
		Messages:  msgs,
	}
}

// SessionID returns the backend-assigned conversation identifier, or ""
// before the first successful turn.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Pending reports whether a send is outstanding.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// record persists a turn to the audit table and the transcript log.
// Both are best-effort: the in-memory log is authoritative.
func (m *Manager) record(msg domain.Message, direction string) {
	if m.msgs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.msgs.AppendMessage(ctx, m.userID, m.chatKey, msg); err != nil {
			m.logger.Warn("failed to persist conversation turn",
				"user_id", m.userID,
				"chat_key", m.chatKey,
				"error", err,
			)
		}
	}
	if m.transcript != nil {
		m.transcript.Log(TranscriptEntry{
			Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
			UserID:         m.userID,
			ChatKey:        m.chatKey,
			ConversationID: m.SessionID(),
			Direction:      direction,
			Role:           string(msg.Role),
			Agent:          msg.AgentTag,
			Text:           msg.Text,
			IsError:        msg.IsError,
		})
	}
}

func (m *Manager) publish() {
	if m.broker == nil {
		return
	}
	m.broker.Publish(events.Event{
		Type:    events.TypeSession,
		UserID:  m.userID,
		ChatKey: m.chatKey,
		Payload: m.State(),
	})
}
