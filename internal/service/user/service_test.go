package user

import (
	"context"
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

type fakeUserRepo struct {
	byIdentity      map[string]*model.User
	patientProfiles map[uuid.UUID]*model.PatientProfile
	providerCalls   int
	patientCalls    int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byIdentity:      make(map[string]*model.User),
		patientProfiles: make(map[uuid.UUID]*model.PatientProfile),
	}
}

func (r *fakeUserRepo) SyncIdentity(_ context.Context, req *model.SyncIdentityRequest) (*model.User, error) {
	u, ok := r.byIdentity[req.IdentityID]
	if !ok {
		u = &model.User{
			Base:       model.Base{ID: uuid.New()},
			IdentityID: req.IdentityID,
			Role:       model.RolePatient,
		}
		r.byIdentity[req.IdentityID] = u
	}
	u.Email = req.Email
	u.DisplayName = req.DisplayName
	out := *u
	return &out, nil
}

func (r *fakeUserRepo) GetByIdentity(_ context.Context, identityID string) (*model.User, error) {
	u, ok := r.byIdentity[identityID]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	out := *u
	return &out, nil
}

func (r *fakeUserRepo) Get(_ context.Context, tenantID uuid.UUID) (*model.User, error) {
	for _, u := range r.byIdentity {
		if u.ID == tenantID {
			out := *u
			return &out, nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

func (r *fakeUserRepo) EnsurePatientProfile(_ context.Context, tenantID uuid.UUID) (*model.PatientProfile, error) {
	r.patientCalls++
	p, ok := r.patientProfiles[tenantID]
	if !ok {
		p = &model.PatientProfile{UserID: tenantID}
		r.patientProfiles[tenantID] = p
	}
	return p, nil
}

func (r *fakeUserRepo) EnsureProviderProfile(_ context.Context, tenantID uuid.UUID, license string) (*model.ProviderProfile, error) {
	r.providerCalls++
	return &model.ProviderProfile{UserID: tenantID, LicenseNumber: license}, nil
}

func (r *fakeUserRepo) UpdatePatientProfile(_ context.Context, tenantID uuid.UUID, profile *model.PatientProfile) error {
	p := *profile
	p.UserID = tenantID
	r.patientProfiles[tenantID] = &p
	return nil
}

type recordingAuditRepo struct {
	entries []*model.AuditLog
}

func (r *recordingAuditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)
var _ repository.AuditRepository = (*recordingAuditRepo)(nil)

func newTestService() (*Service, *fakeUserRepo, *recordingAuditRepo) {
	repo := newFakeUserRepo()
	audits := &recordingAuditRepo{}
	log := logger.NewLogger(nil)
	return NewService(repo, audit.NewService(audits, log)), repo, audits
}

func TestSyncIdentityUpsertsAndAudits(t *testing.T) {
	svc, _, audits := newTestService()
	ctx := context.Background()

	first, err := svc.SyncIdentity(ctx, &model.SyncIdentityRequest{
		IdentityID: "ident_1",
		Email:      "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, first.Role)

	second, err := svc.SyncIdentity(ctx, &model.SyncIdentityRequest{
		IdentityID: "ident_1",
		Email:      "ada+new@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same identity maps to same user")
	assert.Equal(t, "ada+new@example.com", second.Email)

	require.Len(t, audits.entries, 2)
	assert.Equal(t, model.AuditActionSignIn, audits.entries[0].Action)
}

func TestSyncIdentityRejectsBadInput(t *testing.T) {
	svc, _, audits := newTestService()
	ctx := context.Background()

	cases := []*model.SyncIdentityRequest{
		{IdentityID: "", Email: "ada@example.com"},
		{IdentityID: "ident_1", Email: "not-an-email"},
	}
	for _, req := range cases {
		_, err := svc.SyncIdentity(ctx, req)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed), "req %+v", req)
	}
	assert.Empty(t, audits.entries)
}

func TestEnsureProfilePerRole(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	patient := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient}
	require.NoError(t, svc.EnsureProfile(ctx, patient))
	require.NoError(t, svc.EnsureProfile(ctx, patient))
	assert.Equal(t, 2, repo.patientCalls)
	assert.Len(t, repo.patientProfiles, 1, "profile created once")

	provider := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleProvider}
	require.NoError(t, svc.EnsureProfile(ctx, provider))
	assert.Equal(t, 1, repo.providerCalls)

	admin := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleAdmin}
	require.NoError(t, svc.EnsureProfile(ctx, admin))

	odd := &model.User{Base: model.Base{ID: uuid.New()}, Role: "superuser"}
	err := svc.EnsureProfile(ctx, odd)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}

func TestUpdatePatientProfileValidatesPhone(t *testing.T) {
	svc, repo, audits := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()

	bad := "555-not-e164"
	err := svc.UpdatePatientProfile(ctx, tenantID, &model.PatientProfile{EmergencyPhone: &bad})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
	assert.Empty(t, repo.patientProfiles)

	good := "+15551234567"
	allergies := "penicillin"
	require.NoError(t, svc.UpdatePatientProfile(ctx, tenantID, &model.PatientProfile{
		EmergencyPhone: &good,
		Allergies:      &allergies,
	}))
	require.Contains(t, repo.patientProfiles, tenantID)
	assert.Equal(t, "penicillin", *repo.patientProfiles[tenantID].Allergies)
	require.Len(t, audits.entries, 1)
	assert.Equal(t, model.AuditActionUpdate, audits.entries[0].Action)
}
