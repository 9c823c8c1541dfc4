package api

import (
	"context"
	"errors"

	"github.com/loanifi/loanifi-console/internal/domain"
	"github.com/loanifi/loanifi-console/internal/gateway"
)

// stubBackend scripts per-method responses for handler tests.
type stubBackend struct {
	chatResp     *gateway.ChatResponse
	chatErr      error
	funnel       domain.FunnelSnapshot
	funnelErr    error
	overview     *gateway.OverviewStats
	overviewErr  error
	uploadResult *gateway.UploadResult
	verifyResult *gateway.VerifyResult
}

func (s *stubBackend) SendMessage(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	if s.chatResp != nil {
		return s.chatResp, nil
	}
	return &gateway.ChatResponse{Response: "ok", ConversationID: "conv-1", Agent: "sales"}, nil
}

func (s *stubBackend) UploadDocument(ctx context.Context, req gateway.UploadRequest) (*gateway.UploadResult, error) {
	if s.uploadResult != nil {
		return s.uploadResult, nil
	}
	return &gateway.UploadResult{DocumentID: "doc-1", FileName: req.FileName}, nil
}

func (s *stubBackend) VerifyDocument(ctx context.Context, documentID string) (*gateway.VerifyResult, error) {
	if s.verifyResult != nil {
		return s.verifyResult, nil
	}
	return &gateway.VerifyResult{DocumentID: documentID, Valid: true, Confidence: 0.99}, nil
}

func (s *stubBackend) ConversionFunnel(ctx context.Context, startDate, endDate string) (domain.FunnelSnapshot, error) {
	if s.funnelErr != nil {
		return nil, s.funnelErr
	}
	if s.funnel != nil {
		return s.funnel, nil
	}
	return nil, errors.New("no funnel scripted")
}

func (s *stubBackend) OverviewStats(ctx context.Context) (*gateway.OverviewStats, error) {
	if s.overviewErr != nil {
		return nil, s.overviewErr
	}
	if s.overview != nil {
		return s.overview, nil
	}
	return nil, errors.New("no overview scripted")
}
