package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/internal/service/audit"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/validator"
)

type Service struct {
	repo     repository.UserRepository
	auditor  *audit.Service
	validate validator.Validator
}

func NewService(repo repository.UserRepository, auditor *audit.Service) *Service {
	return &Service{repo: repo, auditor: auditor, validate: validator.New()}
}

// SyncIdentity upserts the backend user for the given identity. Idempotent;
// called on every sign-in.
func (s *Service) SyncIdentity(ctx context.Context, req *model.SyncIdentityRequest) (*model.User, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, apperrors.ValidationFailed(err.Error(), err)
	}
	user, err := s.repo.SyncIdentity(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to sync identity: %w", err)
	}
	s.auditor.Log(ctx, user.ID, model.AuditActionSignIn, model.AuditEntityUser, user.ID, map[string]string{
		"email": user.Email,
	})
	return user, nil
}

// ResolveTenant maps an identity-provider id to the backend user row.
func (s *Service) ResolveTenant(ctx context.Context, identityID string) (*model.User, error) {
	return s.repo.GetByIdentity(ctx, identityID)
}

func (s *Service) Get(ctx context.Context, tenantID uuid.UUID) (*model.User, error) {
	return s.repo.Get(ctx, tenantID)
}

// EnsureProfile lazily creates the role-specific profile row the first time
// the confirmed role is seen.
func (s *Service) EnsureProfile(ctx context.Context, user *model.User) error {
	switch user.Role {
	case model.RolePatient:
		_, err := s.repo.EnsurePatientProfile(ctx, user.ID)
		return err
	case model.RoleProvider:
		_, err := s.repo.EnsureProviderProfile(ctx, user.ID, "")
		return err
	case model.RoleAdmin:
		return nil
	default:
		return apperrors.ValidationFailed(fmt.Sprintf("unknown role %q", user.Role), nil)
	}
}

func (s *Service) UpdatePatientProfile(ctx context.Context, tenantID uuid.UUID, profile *model.PatientProfile) error {
	if err := s.validate.Validate(profile); err != nil {
		return apperrors.ValidationFailed(err.Error(), err)
	}
	if err := s.repo.UpdatePatientProfile(ctx, tenantID, profile); err != nil {
		return err
	}
	s.auditor.Log(ctx, tenantID, model.AuditActionUpdate, model.AuditEntityUser, tenantID, nil)
	return nil
}
