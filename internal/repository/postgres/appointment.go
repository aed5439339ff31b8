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

type appointmentRepository struct {
	gate repository.TenantGate
}

func NewAppointmentRepository(gate repository.TenantGate) repository.AppointmentRepository {
	return &appointmentRepository{gate: gate}
}

func (r *appointmentRepository) Create(ctx context.Context, tenantID uuid.UUID, appt *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, provider_id, scheduled_for, status, reason, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	appt.Status = model.AppointmentStatusScheduled

	return r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		_, err := c.ExecContext(ctx, query,
			appt.ID,
			appt.PatientID,
			appt.ProviderID,
			appt.ScheduledFor,
			appt.Status,
			appt.Reason,
			appt.Notes,
			appt.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return nil
	})
}

// Get returns the appointment if the tenant sits on either side of it.
func (r *appointmentRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT * FROM appointments
		WHERE id = $1 AND (patient_id = $2 OR provider_id = $2)
	`
	var appt model.Appointment
	err := r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		return c.GetContext(ctx, &appt, query, id, tenantID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (r *appointmentRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT * FROM appointments
		WHERE patient_id = $1 OR provider_id = $1
		ORDER BY scheduled_for ASC
	`
	var appts []*model.Appointment
	err := r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		return c.SelectContext(ctx, &appts, query, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return appts, nil
}

// UpdateStatus applies a transition only when the row is still in the
// expected from state, so concurrent flips cannot skip the transition matrix.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.AppointmentStatus) error {
	query := `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND (patient_id = $5 OR provider_id = $5)
	`
	return r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		res, err := c.ExecContext(ctx, query, to, time.Now(), id, from, tenantID)
		if err != nil {
			return fmt.Errorf("failed to update appointment status: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("appointment", nil)
		}
		return nil
	})
}
