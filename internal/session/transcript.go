package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// TranscriptEntry is one NDJSON line of the conversation transcript.
type TranscriptEntry struct {
	Timestamp      string `json:"ts"`
	UserID         string `json:"user_id"`
	ChatKey        string `json:"chat_key"`
	ConversationID string `json:"conversation_id,omitempty"`
	Direction      string `json:"direction"`
	Role           string `json:"role"`
	Agent          string `json:"agent,omitempty"`
	Text           string `json:"text"`
	IsError        bool   `json:"is_error,omitempty"`
}

// TranscriptConfig controls transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Transcript appends conversation turns to per-session NDJSON files
// (dir/<userID>/<chatKey>.ndjson). Writes happen on a background worker
// so logging never blocks a send; a full queue drops the entry.
type Transcript struct {
	enabled bool
	dir     string
	queue   chan TranscriptEntry
	done    chan struct{}
	closed  atomic.Bool
	logger  *slog.Logger
}

// NewTranscript creates a transcript logger and starts its worker. When
// disabled, Log is a no-op and no worker runs.
func NewTranscript(cfg TranscriptConfig, logger *slog.Logger) (*Transcript, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transcript{
		enabled: cfg.Enabled,
		dir:     cfg.Dir,
		logger:  logger,
	}
	if !cfg.Enabled {
		return t, nil
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	t.queue = make(chan TranscriptEntry, cfg.QueueSize)
	t.done = make(chan struct{})
	go t.worker()
	return t, nil
}

// Log enqueues one entry. It never blocks: if the queue is full the
// entry is dropped with a warning.
func (t *Transcript) Log(entry TranscriptEntry) {
	if !t.enabled || t.closed.Load() {
		return
	}
	select {
	case t.queue <- entry:
	default:
		t.logger.Warn("transcript queue full, dropping entry",
			"user_id", entry.UserID,
			"chat_key", entry.ChatKey,
		)
	}
}

// Close stops the worker after draining queued entries.
func (t *Transcript) Close() error {
	if !t.enabled || !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.queue)
	<-t.done
	return nil
}

func (t *Transcript) worker() {
	defer close(t.done)
	for entry := range t.queue {
		if err := t.write(entry); err != nil {
			t.logger.Warn("failed to write transcript entry",
				"user_id", entry.UserID,
				"error", err,
			)
		}
	}
}

func (t *Transcript) write(entry TranscriptEntry) error {
	dir := filepath.Join(t.dir, sanitizePathComponent(entry.UserID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create user transcript directory: %w", err)
	}

	path := filepath.Join(dir, sanitizePathComponent(entry.ChatKey)+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			t.logger.Debug("failed to close transcript file", "path", path, "error", closeErr)
		}
	}()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write transcript entry: %w", err)
	}
	return nil
}

// sanitizePathComponent keeps transcript paths inside the configured
// directory even if an identifier carries separators.
func sanitizePathComponent(s string) string {
	base := filepath.Base(filepath.Clean(s))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "unknown"
	}
	return base
}
