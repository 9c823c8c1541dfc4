// Package docs implements the document submission pipeline: a single
// validate -> upload -> verify sequence per task, with one coherent
// status presented to the user and at most one task in flight.
package docs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loanifi/loanifi-console/internal/domain"
	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/gateway"
)

// ErrSubmitInFlight is returned while a previous submission has not
// reached a terminal phase. The call has no side effect.
var ErrSubmitInFlight = errors.New("a document submission is already in flight")

// ErrNothingSelected is returned by Submit when no validated selection
// is held.
var ErrNothingSelected = errors.New("no validated document selected")

// ValidationError is a client-detected failure that never reaches the
// network layer and is reported synchronously.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is a pre-network validation
// failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DocumentStore is the slice of the repository holding the application's
// document checklist, notified after a fully verified submission.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *domain.Document) error
	ListDocuments(ctx context.Context, applicationID string) ([]*domain.Document, error)
}

// selection is the file and type retained between Validate and Submit,
// and kept visible for retry after a failure.
type selection struct {
	fileName     string
	fileSize     int64
	content      []byte
	documentType domain.DocumentType
}

// Pipeline owns the submission lifecycle for one user's documents. Only
// one UploadTask exists at a time; a new task replaces the previous one
// after it reaches a terminal phase.
type Pipeline struct {
	userID        string
	applicationID string

	backend gateway.Backend
	store   DocumentStore
	broker  *events.Broker
	logger  *slog.Logger

	mu   sync.Mutex
	task domain.UploadTask
	sel  *selection
}

// NewPipeline creates a pipeline for one user and application.
func NewPipeline(userID, applicationID string, backend gateway.Backend, store DocumentStore, broker *events.Broker, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		userID:        userID,
		applicationID: applicationID,
		backend:       backend,
		store:         store,
		broker:        broker,
		logger:        logger,
		task:          domain.UploadTask{Phase: domain.PhaseIdle, UpdatedAt: time.Now()},
	}
}

// Validate checks a new selection and arms the task. It fails with a
// ValidationError -- and zero network calls -- when the file exceeds the
// size limit or no document type is chosen. A validation failure is
// terminal for the new task; the selection stays visible for retry.
func (p *Pipeline) Validate(fileName string, size int64, content []byte, docType domain.DocumentType) error {
	err := p.validate(fileName, size, content, docType)
	if !errors.Is(err, ErrSubmitInFlight) {
		p.publish()
	}
	return err
}

func (p *Pipeline) validate(fileName string, size int64, content []byte, docType domain.DocumentType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlightLocked() {
		return ErrSubmitInFlight
	}

	// A new validation replaces any previous terminal task.
	p.sel = &selection{
		fileName:     fileName,
		fileSize:     size,
		content:      content,
		documentType: docType,
	}
	p.setTaskLocked(domain.UploadTask{
		DocumentType: docType,
		FileName:     fileName,
		FileSize:     size,
		Phase:        domain.PhaseValidating,
	})

	if docType == "" {
		return p.failLocked(&ValidationError{Message: "please select a document type"})
	}
	if !docType.IsValid() {
		return p.failLocked(&ValidationError{Message: "unknown document type: " + string(docType)})
	}
	if fileName == "" {
		return p.failLocked(&ValidationError{Message: "please select a file"})
	}
	if size > domain.MaxUploadSize {
		return p.failLocked(&ValidationError{Message: "file size must be less than 10MB"})
	}

	return nil
}

// Submit uploads the validated selection and then runs the dependent
// verify call keyed by the upload's document ID. A verify failure marks
// the whole task failed: a stored-but-unverified document is never
// reported as success. On success the checklist store is updated and the
// selection is cleared; on failure it is retained for retry.
func (p *Pipeline) Submit(ctx context.Context) error {
	p.mu.Lock()
	if p.inFlightLocked() {
		p.mu.Unlock()
		return ErrSubmitInFlight
	}
	if p.sel == nil || p.task.Phase != domain.PhaseValidating {
		p.mu.Unlock()
		return ErrNothingSelected
	}
	sel := *p.sel
	p.task.Phase = domain.PhaseUploading
	p.task.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.publish()

	uploaded, err := p.backend.UploadDocument(ctx, gateway.UploadRequest{
		FileName:      sel.fileName,
		Content:       sel.content,
		DocumentType:  sel.documentType,
		UserID:        p.userID,
		ApplicationID: p.applicationID,
	})
	if err != nil {
		p.logger.Error("document upload failed",
			"user_id", p.userID,
			"document_type", sel.documentType,
			"error", err,
		)
		return p.fail(err)
	}

	p.mu.Lock()
	p.task.Phase = domain.PhaseVerifying
	p.task.DocumentID = uploaded.DocumentID
	p.task.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.publish()

	verified, err := p.backend.VerifyDocument(ctx, uploaded.DocumentID)
	if err != nil {
		p.logger.Error("document verification failed",
			"user_id", p.userID,
			"document_id", uploaded.DocumentID,
			"error", err,
		)
		return p.fail(err)
	}
	if !verified.Valid {
		detail := "document verification failed"
		if len(verified.FraudFlags) > 0 {
			detail += ": " + verified.FraudFlags[0]
		}
		return p.fail(&gateway.Error{Kind: gateway.KindApplication, Message: detail})
	}

	now := time.Now()
	doc := &domain.Document{
		DocumentID:    uploaded.DocumentID,
		ApplicationID: p.applicationID,
		UserID:        p.userID,
		DocumentType:  sel.documentType,
		FileName:      sel.fileName,
		FileSize:      sel.fileSize,
		Verified:      true,
		UploadedAt:    now,
		VerifiedAt:    &now,
	}
	if p.store != nil {
		if err := p.store.SaveDocument(ctx, doc); err != nil {
			p.logger.Warn("failed to record checklist document",
				"user_id", p.userID,
				"document_id", uploaded.DocumentID,
				"error", err,
			)
		}
	}

	p.mu.Lock()
	p.task.Phase = domain.PhaseSucceeded
	p.task.UpdatedAt = now
	// Success clears the selection: the task is ready for a new document.
	p.sel = nil
	p.mu.Unlock()
	p.publish()

	p.logger.Info("document submitted and verified",
		"user_id", p.userID,
		"document_id", uploaded.DocumentID,
		"document_type", sel.documentType,
	)
	return nil
}

// Task returns a snapshot of the current task.
func (p *Pipeline) Task() domain.UploadTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task
}

// Selection returns the retained file name and type, empty after a
// successful submission.
func (p *Pipeline) Selection() (fileName string, docType domain.DocumentType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sel == nil {
		return "", ""
	}
	return p.sel.fileName, p.sel.documentType
}

func (p *Pipeline) inFlightLocked() bool {
	switch p.task.Phase {
	case domain.PhaseUploading, domain.PhaseVerifying:
		return true
	}
	return false
}

func (p *Pipeline) setTaskLocked(task domain.UploadTask) {
	task.UpdatedAt = time.Now()
	p.task = task
}

// failLocked marks the task failed with the human-readable message from
// the deepest failing call. Caller holds the lock.
func (p *Pipeline) failLocked(err error) error {
	p.task.Phase = domain.PhaseFailed
	p.task.ErrorMessage = errorMessage(err)
	p.task.UpdatedAt = time.Now()
	return err
}

func (p *Pipeline) fail(err error) error {
	p.mu.Lock()
	_ = p.failLocked(err)
	p.mu.Unlock()
	p.publish()
	return err
}

func (p *Pipeline) publish() {
	if p.broker == nil {
		return
	}
	p.broker.Publish(events.Event{
		Type:    events.TypeUpload,
		UserID:  p.userID,
		Payload: p.Task(),
	})
}

// errorMessage keeps the user-facing text free of wrapper noise.
func errorMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}
