package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/loanifi/loanifi-console/internal/domain"
)

// Client implements Backend over HTTP against the LoaniFi backend.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialStore
	logger  *slog.Logger
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
	}
}

// NewClient creates a backend client. A nil credential store sends every
// request unauthenticated.
func NewClient(cfg ClientConfig, creds CredentialStore, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		creds:   creds,
		logger:  logger,
	}
}

// Ensure Client implements Backend.
var _ Backend = (*Client)(nil)

// SendMessage submits one user turn and returns the agent reply.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, "/api/chat/message", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadDocument stores one artifact via a multipart request.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, transportErr("build multipart payload", err)
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, transportErr("write multipart file", err)
	}
	fields := map[string]string{
		"document_type":  string(req.DocumentType),
		"user_id":        req.UserID,
		"application_id": req.ApplicationID,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, transportErr("write multipart field "+name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, transportErr("finalize multipart payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/upload", &body)
	if err != nil {
		return nil, transportErr("build upload request", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyDocument runs backend verification for a stored document.
func (c *Client) VerifyDocument(ctx context.Context, documentID string) (*VerifyResult, error) {
	var result VerifyResult
	path := "/api/documents/verify/" + url.PathEscape(documentID)
	if err := c.postJSON(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// funnelPayload matches the backend's funnel response shape: one counter
// per canonical stage name.
type funnelPayload struct {
	TotalConversations    int64 `json:"total_conversations"`
	QualifiedLeads        int64 `json:"qualified_leads"`
	DocumentsSubmitted    int64 `json:"documents_submitted"`
	ApplicationsSubmitted int64 `json:"applications_submitted"`
	Approved              int64 `json:"approved"`
	Sanctioned            int64 `json:"sanctioned"`
}

// ConversionFunnel returns raw stage counts ordered by process sequence.
func (c *Client) ConversionFunnel(ctx context.Context, startDate, endDate string) (domain.FunnelSnapshot, error) {
	endpoint := c.baseURL + "/api/analytics/conversion-funnel"
	params := url.Values{}
	if startDate != "" {
		params.Set("start_date", startDate)
	}
	if endDate != "" {
		params.Set("end_date", endDate)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, transportErr("build funnel request", err)
	}

	var payload funnelPayload
	if err := c.do(httpReq, &payload); err != nil {
		return nil, err
	}

	counts := map[string]int64{
		domain.StageTotalConversations:    payload.TotalConversations,
		domain.StageQualifiedLeads:        payload.QualifiedLeads,
		domain.StageDocumentsSubmitted:    payload.DocumentsSubmitted,
		domain.StageApplicationsSubmitted: payload.ApplicationsSubmitted,
		domain.StageApproved:              payload.Approved,
		domain.StageSanctioned:            payload.Sanctioned,
	}
	snapshot := make(domain.FunnelSnapshot, 0, len(domain.CanonicalStageOrder))
	for _, name := range domain.CanonicalStageOrder {
		snapshot = append(snapshot, domain.FunnelStage{Name: name, Count: counts[name]})
	}
	return snapshot, nil
}

// OverviewStats returns the dashboard summary counters.
func (c *Client) OverviewStats(ctx context.Context) (*OverviewStats, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/admin/stats/overview", nil)
	if err != nil {
		return nil, transportErr("build overview request", err)
	}
	var stats OverviewStats
	if err := c.do(httpReq, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return transportErr("encode request body", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return transportErr("build request", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return c.do(httpReq, out)
}

// do executes a request with the bearer credential attached and
// normalizes failures. A 401 clears the stored credential before
// returning the auth signal, because it invalidates all future calls.
func (c *Client) do(req *http.Request, out any) error {
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr("backend unreachable", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		if c.creds != nil {
			c.creds.Clear()
		}
		c.logger.Warn("backend rejected credential", "path", req.URL.Path)
		return authErr(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return applicationErr(readErrorDetail(resp.Body), resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportErr("decode response body", err)
	}
	return nil
}

// readErrorDetail extracts the backend's error message. The backend
// reports errors as {"detail": "..."}; anything else falls back to a
// generic message so the caller always gets human-readable text.
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 8<<10))
	if err != nil || len(data) == 0 {
		return "backend returned an error"
	}
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("backend returned an error: %s", bytes.TrimSpace(data))
}
