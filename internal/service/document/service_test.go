package document

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/internal/service/audit"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/logger"
)

type fakeBlobStore struct {
	blobs     map[string][]byte
	putErr    error
	removeErr error
	puts      []string
	removes   []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (s *fakeBlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.blobs[key] = data
	s.puts = append(s.puts, key)
	return key, nil
}

func (s *fakeBlobStore) Remove(_ context.Context, locators ...string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, l := range locators {
		delete(s.blobs, l)
		s.removes = append(s.removes, l)
	}
	return nil
}

type fakeDocumentRepo struct {
	docs       map[uuid.UUID]*model.MedicalDocument
	cleanup    []*model.BlobCleanupEntry
	insertErr  error
	deleteErr  error
	cleanupErr error
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[uuid.UUID]*model.MedicalDocument)}
}

func (r *fakeDocumentRepo) Insert(_ context.Context, doc *model.MedicalDocument) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	doc.ID = uuid.New()
	stored := *doc
	r.docs[doc.ID] = &stored
	return nil
}

func (r *fakeDocumentRepo) Get(_ context.Context, ownerID, id uuid.UUID) (*model.MedicalDocument, error) {
	doc, ok := r.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return nil, apperrors.NotFound("document", nil)
	}
	out := *doc
	return &out, nil
}

func (r *fakeDocumentRepo) List(_ context.Context, ownerID uuid.UUID) ([]*model.MedicalDocument, error) {
	var out []*model.MedicalDocument
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			copied := *doc
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	doc, ok := r.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return apperrors.NotFound("document", nil)
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeDocumentRepo) EnqueueCleanup(_ context.Context, locator, reason string) error {
	if r.cleanupErr != nil {
		return r.cleanupErr
	}
	r.cleanup = append(r.cleanup, &model.BlobCleanupEntry{ID: uuid.New(), Locator: locator, Reason: reason})
	return nil
}

func (r *fakeDocumentRepo) PendingCleanup(_ context.Context, limit int) ([]*model.BlobCleanupEntry, error) {
	if len(r.cleanup) > limit {
		return r.cleanup[:limit], nil
	}
	return r.cleanup, nil
}

func (r *fakeDocumentRepo) MarkRemoved(context.Context, uuid.UUID) error  { return nil }
func (r *fakeDocumentRepo) RecordAttempt(context.Context, uuid.UUID) error { return nil }

type nopAuditRepo struct{}

func (nopAuditRepo) Create(context.Context, *model.AuditLog) error { return nil }

var _ repository.DocumentRepository = (*fakeDocumentRepo)(nil)

func newTestService() (*Service, *fakeDocumentRepo, *fakeBlobStore) {
	repo := newFakeDocumentRepo()
	blobs := newFakeBlobStore()
	log := logger.NewLogger(nil)
	return NewService(repo, blobs, audit.NewService(nopAuditRepo{}, log), log), repo, blobs
}

func uploadRequest() *model.UploadDocumentRequest {
	return &model.UploadDocumentRequest{
		Name:        "lab-2026-03.pdf",
		Type:        model.DocumentTypeLabResult,
		ContentType: "application/pdf",
	}
}

func TestUploadWritesBlobThenMetadata(t *testing.T) {
	svc, repo, blobs := newTestService()
	ownerID := uuid.New()

	doc, err := svc.Upload(context.Background(), ownerID, uploadRequest(), []byte("pdf bytes"))
	require.NoError(t, err)

	assert.NotEmpty(t, doc.BlobLocator)
	assert.Contains(t, blobs.blobs, doc.BlobLocator)
	assert.Len(t, repo.docs, 1)
	assert.Equal(t, int64(9), doc.SizeBytes)
}

func TestUploadRejectsEmptyBody(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Upload(context.Background(), uuid.New(), uploadRequest(), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}

func TestUploadBlobFailureLeavesNoMetadata(t *testing.T) {
	svc, repo, blobs := newTestService()
	blobs.putErr = errors.New("s3 unavailable")

	_, err := svc.Upload(context.Background(), uuid.New(), uploadRequest(), []byte("data"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBackendUnreachable))
	assert.Empty(t, repo.docs)
	assert.Empty(t, repo.cleanup)
}

func TestUploadMetadataFailureEnqueuesOrphanedBlob(t *testing.T) {
	svc, repo, blobs := newTestService()
	repo.insertErr = errors.New("insert failed")

	_, err := svc.Upload(context.Background(), uuid.New(), uploadRequest(), []byte("data"))
	require.Error(t, err)

	require.Len(t, blobs.puts, 1, "blob was written before the failure")
	require.Len(t, repo.cleanup, 1, "orphaned locator queued for cleanup")
	assert.Equal(t, blobs.puts[0], repo.cleanup[0].Locator)
}

func TestDeleteRemovesBlobBeforeMetadata(t *testing.T) {
	svc, repo, blobs := newTestService()
	ownerID := uuid.New()

	doc, err := svc.Upload(context.Background(), ownerID, uploadRequest(), []byte("data"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), ownerID, doc.ID))
	assert.NotContains(t, blobs.blobs, doc.BlobLocator)
	assert.Empty(t, repo.docs)
}

func TestDeleteBlobFailureKeepsMetadata(t *testing.T) {
	svc, repo, blobs := newTestService()
	ownerID := uuid.New()

	doc, err := svc.Upload(context.Background(), ownerID, uploadRequest(), []byte("data"))
	require.NoError(t, err)

	blobs.removeErr = errors.New("s3 unavailable")
	err = svc.Delete(context.Background(), ownerID, doc.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBackendUnreachable))
	assert.Len(t, repo.docs, 1, "metadata intact, delete is retryable")
}

func TestDeleteRetryAfterMetadataFailureCompletes(t *testing.T) {
	svc, repo, blobs := newTestService()
	ownerID := uuid.New()

	doc, err := svc.Upload(context.Background(), ownerID, uploadRequest(), []byte("data"))
	require.NoError(t, err)

	// First attempt removes the blob but fails the metadata delete.
	repo.deleteErr = errors.New("db hiccup")
	require.Error(t, svc.Delete(context.Background(), ownerID, doc.ID))
	assert.NotContains(t, blobs.blobs, doc.BlobLocator)
	assert.Len(t, repo.docs, 1)

	// Retry: removing the absent blob is a no-op and the row goes away.
	repo.deleteErr = nil
	require.NoError(t, svc.Delete(context.Background(), ownerID, doc.ID))
	assert.Empty(t, repo.docs)
}

func TestDocumentTenantIsolation(t *testing.T) {
	svc, _, _ := newTestService()
	ownerA := uuid.New()
	ownerB := uuid.New()

	doc, err := svc.Upload(context.Background(), ownerA, uploadRequest(), []byte("data"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), ownerB, doc.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	err = svc.Delete(context.Background(), ownerB, doc.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
