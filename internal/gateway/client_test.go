package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loanifi/loanifi-console/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler, token string) (*Client, *MemoryCredentials) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds := NewMemoryCredentials(token)
	return NewClient(ClientConfig{BaseURL: srv.URL}, creds, nil), creds
}

func TestSendMessageAttachesBearerToken(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/chat/message" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"hi","conversation_id":"conv-1","agent":"sales"}`))
	}), "secret-token")

	resp, err := client.SendMessage(context.Background(), ChatRequest{Message: "hello", UserID: "user-1"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
	if resp.ConversationID != "conv-1" || resp.Response != "hi" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestUnauthorizedClearsCredential(t *testing.T) {
	client, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), "stale-token")

	_, err := client.SendMessage(context.Background(), ChatRequest{Message: "hello"})
	if err == nil {
		t.Fatal("Expected auth error")
	}
	if !IsAuth(err) {
		t.Errorf("Expected KindAuth, got %v", KindOf(err))
	}
	if creds.Token() != "" {
		t.Error("401 must clear the stored credential")
	}
}

func TestApplicationErrorCarriesDetail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"conversation not found"}`))
	}), "")

	_, err := client.SendMessage(context.Background(), ChatRequest{Message: "hello"})
	if err == nil {
		t.Fatal("Expected application error")
	}
	if KindOf(err) != KindApplication {
		t.Errorf("Expected KindApplication, got %v", KindOf(err))
	}
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if ge.Message != "conversation not found" {
		t.Errorf("Expected detail message, got %q", ge.Message)
	}
	if ge.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", ge.HTTPStatus)
	}
}

func TestConnectionFailureIsTransport(t *testing.T) {
	// Point at a server that is already closed.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(ClientConfig{BaseURL: srv.URL}, nil, nil)

	_, err := client.SendMessage(context.Background(), ChatRequest{Message: "hello"})
	if err == nil {
		t.Fatal("Expected transport error")
	}
	if KindOf(err) != KindTransport {
		t.Errorf("Expected KindTransport, got %v", KindOf(err))
	}
}

func TestUploadDocumentSendsMultipartFields(t *testing.T) {
	var gotType, gotUser, gotApp, gotFile string
	var gotContent []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents/upload" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm failed: %v", err)
		}
		gotType = r.FormValue("document_type")
		gotUser = r.FormValue("user_id")
		gotApp = r.FormValue("application_id")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		defer file.Close()
		gotFile = header.Filename
		buf := make([]byte, header.Size)
		_, _ = file.Read(buf)
		gotContent = buf

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"document_id":"doc-9","file_name":"pan.png","message":"stored"}`))
	}), "")

	result, err := client.UploadDocument(context.Background(), UploadRequest{
		FileName:      "pan.png",
		Content:       []byte("img-bytes"),
		DocumentType:  domain.DocumentPANCard,
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if err != nil {
		t.Fatalf("UploadDocument failed: %v", err)
	}
	if result.DocumentID != "doc-9" {
		t.Errorf("Unexpected document ID %q", result.DocumentID)
	}
	if gotType != "pan_card" || gotUser != "user-1" || gotApp != "app-1" || gotFile != "pan.png" {
		t.Errorf("Multipart fields wrong: type=%q user=%q app=%q file=%q", gotType, gotUser, gotApp, gotFile)
	}
	if string(gotContent) != "img-bytes" {
		t.Errorf("File content wrong: %q", gotContent)
	}
}

func TestConversionFunnelOrdersStages(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analytics/conversion-funnel" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total_conversations": 200,
			"qualified_leads": 120,
			"documents_submitted": 80,
			"applications_submitted": 50,
			"approved": 30,
			"sanctioned": 20
		}`))
	}), "")

	snapshot, err := client.ConversionFunnel(context.Background(), "2026-08-01", "2026-08-29")
	if err != nil {
		t.Fatalf("ConversionFunnel failed: %v", err)
	}
	if gotQuery != "end_date=2026-08-29&start_date=2026-08-01" {
		t.Errorf("Unexpected query %q", gotQuery)
	}

	wantCounts := []int64{200, 120, 80, 50, 30, 20}
	if len(snapshot) != len(domain.CanonicalStageOrder) {
		t.Fatalf("Expected %d stages, got %d", len(domain.CanonicalStageOrder), len(snapshot))
	}
	for i, stage := range snapshot {
		if stage.Name != domain.CanonicalStageOrder[i] {
			t.Errorf("Stage %d name = %q, want %q", i, stage.Name, domain.CanonicalStageOrder[i])
		}
		if stage.Count != wantCounts[i] {
			t.Errorf("Stage %q count = %d, want %d", stage.Name, stage.Count, wantCounts[i])
		}
	}
}

func TestVerifyDocumentEscapesID(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"document_id":"doc 1","valid":true,"confidence":0.98}`))
	}), "")

	result, err := client.VerifyDocument(context.Background(), "doc 1")
	if err != nil {
		t.Fatalf("VerifyDocument failed: %v", err)
	}
	if gotPath != "/api/documents/verify/doc%201" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if !result.Valid {
		t.Error("Expected valid result")
	}
}
