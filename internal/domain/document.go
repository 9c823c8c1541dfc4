package domain

import (
	"time"
)

// MaxUploadSize is the largest document the console will accept (10 MiB).
// Oversized files are rejected before any network activity.
const MaxUploadSize = 10 << 20

// DocumentType identifies which artifact of the application checklist a
// file covers.
type DocumentType string

const (
	DocumentPANCard       DocumentType = "pan_card"
	DocumentAadhaarCard   DocumentType = "aadhaar_card"
	DocumentBankStatement DocumentType = "bank_statement"
	DocumentIncomeProof   DocumentType = "income_proof"
	DocumentAddressProof  DocumentType = "address_proof"
	DocumentPhoto         DocumentType = "photo"
)

var knownDocumentTypes = map[DocumentType]bool{
	DocumentPANCard:       true,
	DocumentAadhaarCard:   true,
	DocumentBankStatement: true,
	DocumentIncomeProof:   true,
	DocumentAddressProof:  true,
	DocumentPhoto:         true,
}

// IsValid reports whether the document type is one the checklist knows.
func (d DocumentType) IsValid() bool {
	return knownDocumentTypes[d]
}

// DocumentTypes returns the accepted document types in checklist order.
func DocumentTypes() []DocumentType {
	return []DocumentType{
		DocumentPANCard,
		DocumentAadhaarCard,
		DocumentBankStatement,
		DocumentIncomeProof,
		DocumentAddressProof,
		DocumentPhoto,
	}
}

// UploadPhase is the state of a document submission attempt. Transitions
// only move forward; Failed is terminal and a retry starts a new task.
type UploadPhase string

const (
	PhaseIdle       UploadPhase = "idle"
	PhaseValidating UploadPhase = "validating"
	PhaseUploading  UploadPhase = "uploading"
	PhaseVerifying  UploadPhase = "verifying"
	PhaseSucceeded  UploadPhase = "succeeded"
	PhaseFailed     UploadPhase = "failed"
)

// Terminal reports whether the phase ends a task's lifecycle.
func (p UploadPhase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// UploadTask is a snapshot of one document submission attempt. The
// previously selected file and type stay visible after a failure so the
// user can retry without re-selecting.
type UploadTask struct {
	DocumentType DocumentType `json:"document_type,omitempty"`
	FileName     string       `json:"file_name,omitempty"`
	FileSize     int64        `json:"file_size,omitempty"`
	Phase        UploadPhase  `json:"phase"`
	DocumentID   string       `json:"document_id,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Document is a verified checklist record for an application.
type Document struct {
	DocumentID    string       `json:"document_id"`
	ApplicationID string       `json:"application_id"`
	UserID        string       `json:"user_id"`
	DocumentType  DocumentType `json:"document_type"`
	FileName      string       `json:"file_name"`
	FileSize      int64        `json:"file_size"`
	Verified      bool         `json:"verified"`
	UploadedAt    time.Time    `json:"uploaded_at"`
	VerifiedAt    *time.Time   `json:"verified_at,omitempty"`
}
