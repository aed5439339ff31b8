package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	apperrors "github.com/medtrack/server/pkg/errors"
)

type userRepository struct {
	gate repository.TenantGate
}

func NewUserRepository(gate repository.TenantGate) repository.UserRepository {
	return &userRepository{gate: gate}
}

// SyncIdentity upserts the backend user row keyed on the identity-provider
// id. Safe to call on every sign-in; role is only set on first insert and
// never clobbered by a later sync.
func (r *userRepository) SyncIdentity(ctx context.Context, req *model.SyncIdentityRequest) (*model.User, error) {
	query := `
		INSERT INTO users (id, identity_id, email, display_name, first_name, last_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (identity_id) DO UPDATE
		SET email = EXCLUDED.email,
		    display_name = EXCLUDED.display_name,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = EXCLUDED.updated_at
		RETURNING *
	`
	var user model.User
	err := r.gate.WithIdentity(ctx, req.IdentityID, func(c repository.Conn) error {
		return c.GetContext(ctx, &user, query,
			uuid.New(),
			req.IdentityID,
			req.Email,
			req.DisplayName,
			nullable(req.FirstName),
			nullable(req.LastName),
			model.RolePatient,
			time.Now(),
		)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByIdentity(ctx context.Context, identityID string) (*model.User, error) {
	query := `SELECT * FROM users WHERE identity_id = $1`
	var user model.User
	err := r.gate.WithIdentity(ctx, identityID, func(c repository.Conn) error {
		return c.GetContext(ctx, &user, query, identityID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Get(ctx context.Context, tenantID uuid.UUID) (*model.User, error) {
	query := `SELECT * FROM users WHERE id = $1`
	var user model.User
	err := r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		return c.GetContext(ctx, &user, query, tenantID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user", err)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsurePatientProfile creates the role-specific extension row on first
// access and returns the existing one afterwards.
func (r *userRepository) EnsurePatientProfile(ctx context.Context, tenantID uuid.UUID) (*model.PatientProfile, error) {
	query := `
		INSERT INTO patient_profiles (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = patient_profiles.updated_at
		RETURNING *
	`
	var profile model.PatientProfile
	err := r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		return c.GetContext(ctx, &profile, query, uuid.New(), tenantID, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *userRepository) EnsureProviderProfile(ctx context.Context, tenantID uuid.UUID, licenseNumber string) (*model.ProviderProfile, error) {
	query := `
		INSERT INTO provider_profiles (id, user_id, license_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = provider_profiles.updated_at
		RETURNING *
	`
	var profile model.ProviderProfile
	err := r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		return c.GetContext(ctx, &profile, query, uuid.New(), tenantID, licenseNumber, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *userRepository) UpdatePatientProfile(ctx context.Context, tenantID uuid.UUID, profile *model.PatientProfile) error {
	query := `
		UPDATE patient_profiles
		SET date_of_birth = $1, allergies = $2, conditions = $3,
		    emergency_phone = $4, primary_pharmacy = $5, updated_at = $6
		WHERE user_id = $7
	`
	return r.gate.WithTenant(ctx, tenantID, func(c repository.Conn) error {
		res, err := c.ExecContext(ctx, query,
			profile.DateOfBirth,
			profile.Allergies,
			profile.Conditions,
			profile.EmergencyPhone,
			profile.PrimaryPharmacy,
			time.Now(),
			tenantID,
		)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.NotFound("patient profile", nil)
		}
		return nil
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
