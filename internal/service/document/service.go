package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/blob"
	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/internal/service/audit"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/logger"
)

// MaxDocumentSize caps a single upload.
const MaxDocumentSize = 25 << 20

type Service struct {
	repo    repository.DocumentRepository
	blobs   blob.Store
	auditor *audit.Service
	logger  *logger.Logger
}

func NewService(repo repository.DocumentRepository, blobs blob.Store, auditor *audit.Service, log *logger.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, auditor: auditor, logger: log}
}

// Upload is a two phase write: blob first, metadata second. If the metadata
// insert fails the blob is already durable but unreferenced, so its locator
// goes on the cleanup queue instead of being leaked.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, req *model.UploadDocumentRequest, data []byte) (*model.MedicalDocument, error) {
	if len(data) == 0 {
		return nil, apperrors.ValidationFailed("document body is empty", nil)
	}
	if len(data) > MaxDocumentSize {
		return nil, apperrors.ValidationFailed("document exceeds maximum size", nil)
	}

	locator, err := s.blobs.Put(ctx, blob.OwnerKey(ownerID.String(), req.Name), data, req.ContentType)
	if err != nil {
		return nil, apperrors.BackendUnreachable(fmt.Errorf("blob store rejected upload: %w", err))
	}

	doc := &model.MedicalDocument{
		OwnerID:     ownerID,
		Name:        req.Name,
		Type:        req.Type,
		BlobLocator: locator,
		ContentType: req.ContentType,
		SizeBytes:   int64(len(data)),
	}
	if err := s.repo.Insert(ctx, doc); err != nil {
		if qerr := s.repo.EnqueueCleanup(ctx, locator, "metadata insert failed"); qerr != nil {
			s.logger.Error(qerr, "failed to enqueue orphaned blob for cleanup", "locator", locator)
		}
		return nil, fmt.Errorf("failed to insert document metadata: %w", err)
	}

	s.auditor.Log(ctx, ownerID, model.AuditActionCreate, model.AuditEntityDocument, doc.ID, map[string]string{
		"name": doc.Name,
		"type": doc.Type,
	})
	return doc, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.MedicalDocument, error) {
	return s.repo.Get(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*model.MedicalDocument, error) {
	return s.repo.List(ctx, ownerID)
}

// Delete removes the blob before the metadata row. If the blob removal fails
// nothing is changed and the caller can retry the whole delete; if the
// metadata delete fails after the blob is gone, a retry finds the row still
// present, removes the now absent blob as a no-op, and finishes the job.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	doc, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, doc.BlobLocator); err != nil {
		return apperrors.BackendUnreachable(fmt.Errorf("blob store rejected delete: %w", err))
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete document metadata: %w", err)
	}
	s.auditor.Log(ctx, ownerID, model.AuditActionDelete, model.AuditEntityDocument, id, nil)
	return nil
}
