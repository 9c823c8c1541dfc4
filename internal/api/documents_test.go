package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/loanifi/loanifi-console/internal/docs"
	"github.com/loanifi/loanifi-console/internal/domain"
	"github.com/loanifi/loanifi-console/internal/gateway"
	"github.com/loanifi/loanifi-console/internal/identity"
	"github.com/loanifi/loanifi-console/internal/store"
)

func newDocumentsRouter(t *testing.T, backend gateway.Backend) http.Handler {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	pipelines := docs.NewRegistry(backend, repo, nil, nil)
	handler := NewDocumentsHandler(pipelines, repo)

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, "english", true))
	handler.RegisterRoutes(r)
	return r
}

func multipartUpload(t *testing.T, docType, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if docType != "" {
		if err := mw.WriteField("document_type", docType); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("part write failed: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close failed: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestSubmitDocumentSucceeds(t *testing.T) {
	router := newDocumentsRouter(t, &stubBackend{})

	body, contentType := multipartUpload(t, "pan_card", "pan.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var task domain.UploadTask
	if err := json.NewDecoder(w.Body).Decode(&task); err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	if task.Phase != domain.PhaseSucceeded {
		t.Errorf("Expected succeeded phase, got %q", task.Phase)
	}
	if task.DocumentID != "doc-1" {
		t.Errorf("Expected document ID doc-1, got %q", task.DocumentID)
	}

	// The checklist now lists the verified document.
	checklist := httptest.NewRequest(http.MethodGet, "/api/documents/checklist", nil)
	for _, c := range w.Result().Cookies() {
		checklist.AddCookie(c)
	}
	cw := httptest.NewRecorder()
	router.ServeHTTP(cw, checklist)
	if cw.Code != http.StatusOK {
		t.Fatalf("Checklist failed: %d", cw.Code)
	}
	var payload struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := json.NewDecoder(cw.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode checklist: %v", err)
	}
	if len(payload.Documents) != 1 || !payload.Documents[0].Verified {
		t.Errorf("Expected one verified checklist entry, got %+v", payload.Documents)
	}
}

func TestSubmitDocumentMissingType(t *testing.T) {
	router := newDocumentsRouter(t, &stubBackend{})

	body, contentType := multipartUpload(t, "", "pan.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing type, got %d", w.Code)
	}
}

func TestSubmitDocumentVerifyRejection(t *testing.T) {
	backend := &stubBackend{
		verifyResult: &gateway.VerifyResult{DocumentID: "doc-1", Valid: false, FraudFlags: []string{"blurred image"}},
	}
	router := newDocumentsRouter(t, backend)

	body, contentType := multipartUpload(t, "pan_card", "pan.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 for verify rejection, got %d", w.Code)
	}
	var task domain.UploadTask
	if err := json.NewDecoder(w.Body).Decode(&task); err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	if task.Phase != domain.PhaseFailed {
		t.Errorf("Expected failed phase, got %q", task.Phase)
	}
	if task.ErrorMessage == "" {
		t.Error("Expected failure detail in task")
	}
}

func TestTaskEndpointStartsIdle(t *testing.T) {
	router := newDocumentsRouter(t, &stubBackend{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/task", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var task domain.UploadTask
	if err := json.NewDecoder(w.Body).Decode(&task); err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	if task.Phase != domain.PhaseIdle && task.Phase != "" {
		t.Errorf("Expected idle task, got %q", task.Phase)
	}
}

func TestTypesEndpointListsChecklist(t *testing.T) {
	router := newDocumentsRouter(t, &stubBackend{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/types", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var payload struct {
		Types []domain.DocumentType `json:"types"`
	}
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode types: %v", err)
	}
	if len(payload.Types) != 6 {
		t.Errorf("Expected 6 document types, got %d", len(payload.Types))
	}
}
