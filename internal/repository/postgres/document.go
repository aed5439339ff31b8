package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	apperrors "github.com/medtrack/server/pkg/errors"
)

type documentRepository struct {
	gate repository.TenantGate
	db   *sqlx.DB
}

// NewDocumentRepository needs the raw handle besides the gate: the cleanup
// queue is keyed by locator, not tenant, and the worker drains it without a
// tenant in hand.
func NewDocumentRepository(gate repository.TenantGate, db *sqlx.DB) repository.DocumentRepository {
	return &documentRepository{gate: gate, db: db}
}

func (r *documentRepository) Insert(ctx context.Context, doc *model.MedicalDocument) error {
	query := `
		INSERT INTO medical_documents (
			id, owner_id, name, type, blob_locator, content_type, size_bytes,
			uploaded_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
	`
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	doc.UploadedAt = doc.CreatedAt

	return r.gate.WithTenant(ctx, doc.OwnerID, func(c repository.Conn) error {
		_, err := c.ExecContext(ctx, query,
			doc.ID,
			doc.OwnerID,
			doc.Name,
			doc.Type,
			doc.BlobLocator,
			doc.ContentType,
			doc.SizeBytes,
			doc.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert document metadata: %w", err)
		}
		return nil
	})
}

func (r *documentRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.MedicalDocument, error) {
	query := `SELECT * FROM medical_documents WHERE id = $1 AND owner_id = $2`
	var doc model.MedicalDocument
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		return c.GetContext(ctx, &doc, query, id, ownerID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("document", err)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*model.MedicalDocument, error) {
	query := `
		SELECT * FROM medical_documents
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC
	`
	var docs []*model.MedicalDocument
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		return c.SelectContext(ctx, &docs, query, ownerID)
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM medical_documents WHERE id = $1 AND owner_id = $2`
	return r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		res, err := c.ExecContext(ctx, query, id, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete document metadata: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("document", nil)
		}
		return nil
	})
}

func (r *documentRepository) EnqueueCleanup(ctx context.Context, locator, reason string) error {
	query := `
		INSERT INTO blob_cleanup (id, locator, reason, attempts, created_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (locator) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, uuid.New(), locator, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to enqueue blob cleanup: %w", err)
	}
	return nil
}

func (r *documentRepository) PendingCleanup(ctx context.Context, limit int) ([]*model.BlobCleanupEntry, error) {
	query := `
		SELECT * FROM blob_cleanup
		WHERE removed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	var entries []*model.BlobCleanupEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending cleanup: %w", err)
	}
	return entries, nil
}

func (r *documentRepository) MarkRemoved(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE blob_cleanup SET removed_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

func (r *documentRepository) RecordAttempt(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE blob_cleanup SET attempts = attempts + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
