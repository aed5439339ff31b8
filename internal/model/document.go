package model

import (
	"time"

	"github.com/google/uuid"
)

// Document type constants
const (
	DocumentTypePrescription = "prescription"
	DocumentTypeLabResult    = "lab_result"
	DocumentTypeInsurance    = "insurance"
	DocumentTypeOther        = "other"
)

// MedicalDocument is the metadata row paired 1:1 with a blob in the external
// store. Upload writes the blob first, then this row; delete removes the blob
// first, then this row, so a crash mid-delete leaves a row pointing at a
// missing blob rather than an untracked blob.
type MedicalDocument struct {
	Base
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Type        string    `json:"type" db:"type"`
	BlobLocator string    `json:"blob_locator" db:"blob_locator"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// BlobCleanupEntry is a locator whose metadata insert failed; the worker
// retires it from the blob store.
type BlobCleanupEntry struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Locator   string     `json:"locator" db:"locator"`
	Reason    string     `json:"reason" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RemovedAt *time.Time `json:"removed_at" db:"removed_at"`
	Attempts  int        `json:"attempts" db:"attempts"`
}

type UploadDocumentRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required,oneof=prescription lab_result insurance other"`
	ContentType string `json:"content_type" binding:"required"`
}
