// Package gateway is the thin request/response boundary to the LoaniFi
// agent backend. It attaches the bearer credential, performs no retries,
// and normalizes every failure into the *Error taxonomy consumed by the
// session and document components.
package gateway

import (
	"context"

	"github.com/loanifi/loanifi-console/internal/domain"
)

// ChatRequest is one turn sent to the backend agent pipeline.
// ConversationID is empty on the first turn of a session; the backend
// assigns one in its response and it is authoritative afterwards.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id"`
	Language       string `json:"language,omitempty"`
}

// ChatResponse is the agent's answer to one turn.
type ChatResponse struct {
	Response       string            `json:"response"`
	ConversationID string            `json:"conversation_id"`
	Agent          string            `json:"agent"`
	Sentiment      *domain.Sentiment `json:"sentiment,omitempty"`
}

// UploadRequest carries one document artifact to the backend.
type UploadRequest struct {
	FileName      string
	Content       []byte
	DocumentType  domain.DocumentType
	UserID        string
	ApplicationID string
}

// UploadResult is the backend's record of a stored document.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"filename"`
	Message    string `json:"message"`
}

// VerifyResult is the outcome of backend document verification.
type VerifyResult struct {
	DocumentID string   `json:"document_id"`
	Valid      bool     `json:"valid"`
	Confidence float64  `json:"confidence_score"`
	FraudFlags []string `json:"fraud_flags"`
}

// PeriodStats is a count pair used by the overview summary.
type PeriodStats struct {
	Conversations int64 `json:"conversations"`
	Applications  int64 `json:"applications"`
}

// TotalStats are the all-time counters of the overview summary.
type TotalStats struct {
	Conversations int64 `json:"conversations"`
	Applications  int64 `json:"applications"`
	Sanctioned    int64 `json:"sanctioned"`
}

// OverviewStats is the dashboard summary, consumed read-only with no
// transformation beyond display.
type OverviewStats struct {
	Today               PeriodStats `json:"today"`
	Total               TotalStats  `json:"total"`
	ActiveConversations int64       `json:"active_conversations"`
	ConversionRate      float64     `json:"conversion_rate"`
}

// Backend is the boundary contract the stateful components consume. The
// backend's internals (agent routing, OCR, persistence) stay behind this
// request/response surface.
type Backend interface {
	// SendMessage submits one user turn and returns the agent reply.
	SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// UploadDocument stores one artifact and returns its identifier.
	UploadDocument(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// VerifyDocument runs backend verification for a stored document.
	VerifyDocument(ctx context.Context, documentID string) (*VerifyResult, error)

	// ConversionFunnel returns raw stage counts, ordered by process
	// sequence. Empty dates fall back to the backend's default window.
	ConversionFunnel(ctx context.Context, startDate, endDate string) (domain.FunnelSnapshot, error)

	// OverviewStats returns the dashboard summary counters.
	OverviewStats(ctx context.Context) (*OverviewStats, error)
}
