package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loanifi/loanifi-console/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		application_id TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'english',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		chat_key TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		agent_tag TEXT,
		sentiment_json TEXT,
		is_error INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(user_id, chat_key, id);

	CREATE TABLE IF NOT EXISTS documents (
		document_id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		document_type TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		verified_at INTEGER,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_application ON documents(application_id, uploaded_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, application_id, language,
		       last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Username, &user.ApplicationID, &user.Language,
		&lastSeen, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record. The application ID is
// assigned once at creation and never replaced afterwards.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, application_id, language, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		language = excluded.language,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.ApplicationID, user.Language,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// AppendMessage persists one conversation turn entry.
func (s *SQLiteStore) AppendMessage(ctx context.Context, userID, chatKey string, msg domain.Message) error {
	var sentimentJSON any
	if msg.Sentiment != nil {
		data, err := json.Marshal(msg.Sentiment)
		if err != nil {
			return fmt.Errorf("encode sentiment: %w", err)
		}
		sentimentJSON = string(data)
	}

	var agentTag any
	if msg.AgentTag != "" {
		agentTag = msg.AgentTag
	}

	query := `
		INSERT INTO messages (user_id, chat_key, role, text, agent_tag, sentiment_json, is_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		userID, chatKey, string(msg.Role), msg.Text,
		agentTag, sentimentJSON, msg.IsError, msg.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// History returns persisted conversation turns in append order.
func (s *SQLiteStore) History(ctx context.Context, userID, chatKey string, limit int) ([]domain.Message, error) {
	query := `
		SELECT role, text, agent_tag, sentiment_json, is_error, created_at
		FROM messages WHERE user_id = ? AND chat_key = ?
		ORDER BY id ASC`
	args := []any{userID, chatKey}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close history rows", "error", closeErr)
		}
	}()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var agentTag, sentimentJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(&role, &msg.Text, &agentTag, &sentimentJSON, &msg.IsError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		msg.Role = domain.Role(role)
		msg.AgentTag = agentTag.String
		msg.Timestamp = time.Unix(createdAt, 0)
		if sentimentJSON.Valid {
			var sentiment domain.Sentiment
			if err := json.Unmarshal([]byte(sentimentJSON.String), &sentiment); err != nil {
				slog.Warn("skipping malformed sentiment", "user_id", userID, "error", err)
			} else {
				msg.Sentiment = &sentiment
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return messages, nil
}

// ClearHistory removes the persisted log for one chat session.
// Retries with exponential backoff to handle SQLITE_BUSY contention.
func (s *SQLiteStore) ClearHistory(ctx context.Context, userID, chatKey string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ? AND chat_key = ?`, userID, chatKey)
		if err == nil {
			return nil
		}
		lastErr = err

		if isBusyErr(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("ClearHistory hit SQLITE_BUSY, retrying",
				"user_id", userID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}

	return fmt.Errorf("clear history for %s: %w", userID, lastErr)
}

// SaveDocument records a successfully submitted checklist document.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	var verifiedAt any
	if doc.VerifiedAt != nil {
		verifiedAt = doc.VerifiedAt.Unix()
	}

	query := `
	INSERT INTO documents (document_id, application_id, user_id, document_type, file_name, file_size, verified, verified_at, uploaded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(document_id) DO UPDATE SET
		verified = excluded.verified,
		verified_at = excluded.verified_at`

	_, err := s.db.ExecContext(ctx, query,
		doc.DocumentID, doc.ApplicationID, doc.UserID, string(doc.DocumentType),
		doc.FileName, doc.FileSize, doc.Verified, verifiedAt, doc.UploadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// ListDocuments returns the checklist for an application, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, applicationID string) ([]*domain.Document, error) {
	query := `
		SELECT document_id, application_id, user_id, document_type, file_name, file_size, verified, verified_at, uploaded_at
		FROM documents WHERE application_id = ?
		ORDER BY uploaded_at DESC`

	rows, err := s.db.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close document rows", "error", closeErr)
		}
	}()

	var docs []*domain.Document
	for rows.Next() {
		var doc domain.Document
		var docType string
		var verifiedAt sql.NullInt64
		var uploadedAt int64

		if err := rows.Scan(
			&doc.DocumentID, &doc.ApplicationID, &doc.UserID, &docType,
			&doc.FileName, &doc.FileSize, &doc.Verified, &verifiedAt, &uploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}

		doc.DocumentType = domain.DocumentType(docType)
		doc.UploadedAt = time.Unix(uploadedAt, 0)
		if verifiedAt.Valid {
			ts := time.Unix(verifiedAt.Int64, 0)
			doc.VerifiedAt = &ts
		}
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isBusyErr reports whether the error is SQLite lock contention
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
