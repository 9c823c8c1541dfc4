package domain

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message typed by the end user.
	RoleUser Role = "user"
	// RoleAgent marks a reply produced by the backend agent pipeline.
	RoleAgent Role = "agent"
	// RoleSystem marks a synthetic message inserted by the console itself,
	// such as a failure notice.
	RoleSystem Role = "system"
)

// Sentiment is the optional sentiment classification the backend attaches
// to an agent reply. Absence is meaningful, so it is always carried as a
// pointer rather than a zero value.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Message is one turn entry in a conversation log. Messages are immutable
// once appended and are never reordered or removed.
type Message struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	AgentTag  string     `json:"agent,omitempty"`
	Sentiment *Sentiment `json:"sentiment,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	IsError   bool       `json:"is_error,omitempty"`
}
