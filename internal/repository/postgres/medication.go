package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	apperrors "github.com/medtrack/server/pkg/errors"
)

type medicationRepository struct {
	gate repository.TenantGate
}

func NewMedicationRepository(gate repository.TenantGate) repository.MedicationRepository {
	return &medicationRepository{gate: gate}
}

func (r *medicationRepository) Create(ctx context.Context, med *model.Medication) error {
	query := `
		INSERT INTO medications (
			id, owner_id, name, generic_name, dosage, frequency, route,
			prescriber, pharmacy, source, confidence, notes, active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13, $13)
	`
	med.CreatedAt = time.Now()
	med.UpdatedAt = med.CreatedAt
	med.Active = true

	return r.gate.WithTenant(ctx, med.OwnerID, func(c repository.Conn) error {
		_, err := c.ExecContext(ctx, query,
			med.ID,
			med.OwnerID,
			med.Name,
			med.GenericName,
			med.Dosage,
			med.Frequency,
			med.Route,
			med.Prescriber,
			med.Pharmacy,
			med.Source,
			med.Confidence,
			med.Notes,
			med.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create medication: %w", err)
		}
		return nil
	})
}

func (r *medicationRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Medication, error) {
	query := `SELECT * FROM medications WHERE id = $1 AND owner_id = $2`
	var med model.Medication
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		return c.GetContext(ctx, &med, query, id, ownerID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("medication", err)
	}
	if err != nil {
		return nil, err
	}
	return &med, nil
}

func (r *medicationRepository) Update(ctx context.Context, med *model.Medication) error {
	query := `
		UPDATE medications
		SET name = $1, generic_name = $2, dosage = $3, frequency = $4,
		    route = $5, prescriber = $6, pharmacy = $7, confidence = $8,
		    notes = $9, updated_at = $10
		WHERE id = $11 AND owner_id = $12 AND active = true
	`
	return r.gate.WithTenant(ctx, med.OwnerID, func(c repository.Conn) error {
		res, err := c.ExecContext(ctx, query,
			med.Name,
			med.GenericName,
			med.Dosage,
			med.Frequency,
			med.Route,
			med.Prescriber,
			med.Pharmacy,
			med.Confidence,
			med.Notes,
			time.Now(),
			med.ID,
			med.OwnerID,
		)
		if err != nil {
			return fmt.Errorf("failed to update medication: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("medication", nil)
		}
		return nil
	})
}

// SoftDelete flips active to false. Idempotent: a second call on the same id
// is a no-op that still succeeds.
func (r *medicationRepository) SoftDelete(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `
		UPDATE medications SET active = false, updated_at = $1
		WHERE id = $2 AND owner_id = $3
	`
	return r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		res, err := c.ExecContext(ctx, query, time.Now(), id, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete medication: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("medication", nil)
		}
		return nil
	})
}

func (r *medicationRepository) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*model.Medication, error) {
	query := `
		SELECT * FROM medications
		WHERE owner_id = $1 AND active = true
		ORDER BY created_at DESC
	`
	var meds []*model.Medication
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		return c.SelectContext(ctx, &meds, query, ownerID)
	})
	if err != nil {
		return nil, err
	}
	return meds, nil
}
