package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/loanifi/loanifi-console/internal/docs"
	"github.com/loanifi/loanifi-console/internal/domain"
	"github.com/loanifi/loanifi-console/internal/identity"
	"github.com/loanifi/loanifi-console/internal/store"
)

// DocumentsHandler exposes the document submission pipeline over HTTP.
type DocumentsHandler struct {
	pipelines *docs.Registry
	repo      store.Repository
}

// NewDocumentsHandler creates a documents handler.
func NewDocumentsHandler(pipelines *docs.Registry, repo store.Repository) *DocumentsHandler {
	return &DocumentsHandler{pipelines: pipelines, repo: repo}
}

// RegisterRoutes registers document routes.
func (h *DocumentsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Get("/task", h.Task)
		r.Get("/checklist", h.Checklist)
		r.Get("/types", h.Types)
	})
}

// Submit accepts a multipart upload, validates it, and runs the
// upload-then-verify sequence. Validation failures never reach the
// backend; they come back as 400 with the task in the failed phase.
func (h *DocumentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	pipe, err := h.pipeline(r, userID)
	if err != nil {
		slog.Error("failed to resolve application", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to resolve application")
		return
	}

	// A couple of megabytes of slack over the document limit covers the
	// multipart framing and the form fields.
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxUploadSize+(2<<20))
	if err := r.ParseMultipartForm(domain.MaxUploadSize); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	docType := domain.DocumentType(r.FormValue("document_type"))
	file, header, err := r.FormFile("file")
	if err != nil {
		// No file selected is still a pipeline-visible validation
		// failure, not a transport error.
		if verr := pipe.Validate("", 0, nil, docType); verr != nil {
			Error(w, http.StatusBadRequest, verr.Error())
			return
		}
		Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	if err := pipe.Validate(header.Filename, header.Size, content, docType); err != nil {
		if errors.Is(err, docs.ErrSubmitInFlight) {
			Error(w, http.StatusConflict, "a submission is already in progress")
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := pipe.Submit(r.Context()); err != nil {
		switch {
		case errors.Is(err, docs.ErrSubmitInFlight):
			Error(w, http.StatusConflict, "a submission is already in progress")
		case errors.Is(err, docs.ErrNothingSelected):
			Error(w, http.StatusBadRequest, "no validated selection to submit")
		default:
			// The task already carries the failure detail; surface it
			// with the task so the caller sees both.
			JSON(w, http.StatusBadGateway, pipe.Task())
		}
		return
	}

	JSON(w, http.StatusOK, pipe.Task())
}

// Task returns the current upload task snapshot.
func (h *DocumentsHandler) Task(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	pipe, err := h.pipeline(r, userID)
	if err != nil {
		slog.Error("failed to resolve application", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to resolve application")
		return
	}
	JSON(w, http.StatusOK, pipe.Task())
}

// Checklist returns the verified documents stored for the application.
func (h *DocumentsHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		slog.Error("failed to load user", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	documents, err := h.repo.ListDocuments(r.Context(), user.ApplicationID)
	if err != nil {
		slog.Error("failed to list documents", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if documents == nil {
		documents = []*domain.Document{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"application_id": user.ApplicationID,
		"documents":      documents,
	})
}

// Types returns the accepted document types.
func (h *DocumentsHandler) Types(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"types": domain.DocumentTypes(),
	})
}

func (h *DocumentsHandler) pipeline(r *http.Request, userID string) (*docs.Pipeline, error) {
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user record not found")
	}
	return h.pipelines.Get(userID, user.ApplicationID), nil
}
