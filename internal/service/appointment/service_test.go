package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/internal/service/audit"
	"github.com/medtrack/server/internal/service/event"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/logger"
)

type fakeAppointmentRepo struct {
	appts map[uuid.UUID]*model.Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{appts: make(map[uuid.UUID]*model.Appointment)}
}

func (r *fakeAppointmentRepo) participates(appt *model.Appointment, tenantID uuid.UUID) bool {
	if appt.PatientID == tenantID {
		return true
	}
	return appt.ProviderID != nil && *appt.ProviderID == tenantID
}

func (r *fakeAppointmentRepo) Create(_ context.Context, _ uuid.UUID, appt *model.Appointment) error {
	appt.ID = uuid.New()
	stored := *appt
	r.appts[appt.ID] = &stored
	return nil
}

func (r *fakeAppointmentRepo) Get(_ context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	appt, ok := r.appts[id]
	if !ok || !r.participates(appt, tenantID) {
		return nil, apperrors.NotFound("appointment", nil)
	}
	out := *appt
	return &out, nil
}

func (r *fakeAppointmentRepo) List(_ context.Context, tenantID uuid.UUID) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, appt := range r.appts {
		if r.participates(appt, tenantID) {
			copied := *appt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAppointmentRepo) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, from, to model.AppointmentStatus) error {
	appt, ok := r.appts[id]
	if !ok || !r.participates(appt, tenantID) || appt.Status != from {
		return apperrors.NotFound("appointment", nil)
	}
	appt.Status = to
	return nil
}

type nopAuditRepo struct{}

func (nopAuditRepo) Create(context.Context, *model.AuditLog) error { return nil }

type nopOutboxRepo struct{ events []*model.OutboxEvent }

func (r *nopOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	r.events = append(r.events, e)
	return nil
}
func (r *nopOutboxRepo) GetPendingWithLock(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}
func (r *nopOutboxRepo) MarkProcessed(context.Context, uuid.UUID) error      { return nil }
func (r *nopOutboxRepo) MarkFailed(context.Context, uuid.UUID, string) error { return nil }
func (r *nopOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ repository.AppointmentRepository = (*fakeAppointmentRepo)(nil)

func newTestService() (*Service, *fakeAppointmentRepo, *nopOutboxRepo) {
	repo := newFakeAppointmentRepo()
	outbox := &nopOutboxRepo{}
	log := logger.NewLogger(nil)
	return NewService(repo, audit.NewService(nopAuditRepo{}, log), event.NewService(outbox)), repo, outbox
}

func createRequest(patientID uuid.UUID) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID:    patientID,
		ScheduledFor: time.Now().Add(48 * time.Hour),
	}
}

func TestCreateAppointmentStartsScheduled(t *testing.T) {
	svc, _, _ := newTestService()
	patientID := uuid.New()

	appt, err := svc.Create(context.Background(), patientID, createRequest(patientID))
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, appt.Status)
}

func TestUpdateStatusTerminalTransitions(t *testing.T) {
	for _, to := range []model.AppointmentStatus{
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	} {
		t.Run(string(to), func(t *testing.T) {
			svc, _, outbox := newTestService()
			patientID := uuid.New()

			appt, err := svc.Create(context.Background(), patientID, createRequest(patientID))
			require.NoError(t, err)

			updated, err := svc.UpdateStatus(context.Background(), patientID, appt.ID, to)
			require.NoError(t, err)
			assert.Equal(t, to, updated.Status)
			assert.NotEmpty(t, outbox.events)
		})
	}
}

func TestUpdateStatusRejectsLeavingTerminalState(t *testing.T) {
	svc, _, _ := newTestService()
	patientID := uuid.New()

	appt, err := svc.Create(context.Background(), patientID, createRequest(patientID))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), patientID, appt.ID, model.AppointmentStatusCancelled)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), patientID, appt.ID, model.AppointmentStatusCompleted)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}

func TestAppointmentVisibleToBothSides(t *testing.T) {
	svc, _, _ := newTestService()
	patientID := uuid.New()
	providerID := uuid.New()

	req := createRequest(patientID)
	req.ProviderID = &providerID
	appt, err := svc.Create(context.Background(), patientID, req)
	require.NoError(t, err)

	for _, tenant := range []uuid.UUID{patientID, providerID} {
		got, err := svc.Get(context.Background(), tenant, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, appt.ID, got.ID)
	}

	// A third party sees nothing.
	_, err = svc.Get(context.Background(), uuid.New(), appt.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestCreateRejectsNonParty(t *testing.T) {
	svc, repo, _ := newTestService()
	victimPatient := uuid.New()
	victimProvider := uuid.New()
	attacker := uuid.New()

	req := createRequest(victimPatient)
	req.ProviderID = &victimProvider
	_, err := svc.Create(context.Background(), attacker, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
	assert.Empty(t, repo.appts, "nothing written on behalf of other tenants")

	victims, err := svc.List(context.Background(), victimPatient)
	require.NoError(t, err)
	assert.Empty(t, victims)
}

func TestCreateAllowedForEitherParty(t *testing.T) {
	svc, _, _ := newTestService()
	patientID := uuid.New()
	providerID := uuid.New()

	req := createRequest(patientID)
	req.ProviderID = &providerID
	_, err := svc.Create(context.Background(), providerID, req)
	require.NoError(t, err)
}

func TestProviderCanCompleteAppointment(t *testing.T) {
	svc, _, _ := newTestService()
	patientID := uuid.New()
	providerID := uuid.New()

	req := createRequest(patientID)
	req.ProviderID = &providerID
	appt, err := svc.Create(context.Background(), patientID, req)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), providerID, appt.ID, model.AppointmentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, updated.Status)
}
