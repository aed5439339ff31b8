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

type doseRepository struct {
	gate repository.TenantGate
}

func NewDoseRepository(gate repository.TenantGate) repository.DoseRepository {
	return &doseRepository{gate: gate}
}

// InsertBatch writes generated doses, skipping any (medication, scheduled
// time) pair that already exists. Regenerating an overlapping window is
// therefore a no-op for the overlap. Returns the number of rows inserted.
func (r *doseRepository) InsertBatch(ctx context.Context, ownerID uuid.UUID, doses []*model.MedicationDose) (int, error) {
	if len(doses) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO medication_doses (
			id, medication_id, owner_id, scheduled_at, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (medication_id, scheduled_at) DO NOTHING
	`
	inserted := 0
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		now := time.Now()
		for _, dose := range doses {
			res, err := c.ExecContext(ctx, query,
				dose.ID,
				dose.MedicationID,
				ownerID,
				dose.ScheduledAt,
				model.DoseStatusPending,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert dose: %w", err)
			}
			rows, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(rows)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *doseRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.MedicationDose, error) {
	query := `SELECT * FROM medication_doses WHERE id = $1 AND owner_id = $2`
	var dose model.MedicationDose
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		return c.GetContext(ctx, &dose, query, id, ownerID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("dose", err)
	}
	if err != nil {
		return nil, err
	}
	return &dose, nil
}

func (r *doseRepository) ListForMedication(ctx context.Context, ownerID, medicationID uuid.UUID, from, to time.Time) ([]*model.MedicationDose, error) {
	query := `
		SELECT * FROM medication_doses
		WHERE medication_id = $1 AND owner_id = $2
		  AND scheduled_at >= $3 AND scheduled_at < $4
		ORDER BY scheduled_at ASC
	`
	var doses []*model.MedicationDose
	err := r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		return c.SelectContext(ctx, &doses, query, medicationID, ownerID, from, to)
	})
	if err != nil {
		return nil, err
	}
	return doses, nil
}

// UpdateStatus flips a dose away from pending exactly once; the pending
// predicate makes a second flip a NotFound rather than an overwrite.
func (r *doseRepository) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status model.DoseStatus, takenAt *time.Time) error {
	query := `
		UPDATE medication_doses SET status = $1, taken_at = $2, updated_at = $3
		WHERE id = $4 AND owner_id = $5 AND status = $6
	`
	return r.gate.WithTenant(ctx, ownerID, func(c repository.Conn) error {
		res, err := c.ExecContext(ctx, query, status, takenAt, time.Now(), id, ownerID, model.DoseStatusPending)
		if err != nil {
			return fmt.Errorf("failed to update dose status: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("pending dose", nil)
		}
		return nil
	})
}
