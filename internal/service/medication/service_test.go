package medication

import (
	"context"
	"fmt"
	"sort"
	"sync"
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

type fakeMedicationRepo struct {
	mu   sync.Mutex
	meds map[uuid.UUID]*model.Medication
}

func newFakeMedicationRepo() *fakeMedicationRepo {
	return &fakeMedicationRepo{meds: make(map[uuid.UUID]*model.Medication)}
}

func (r *fakeMedicationRepo) Create(_ context.Context, med *model.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	med.ID = uuid.New()
	stored := *med
	r.meds[med.ID] = &stored
	return nil
}

func (r *fakeMedicationRepo) Get(_ context.Context, ownerID, id uuid.UUID) (*model.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, ok := r.meds[id]
	if !ok || med.OwnerID != ownerID {
		return nil, apperrors.NotFound("medication", nil)
	}
	out := *med
	return &out, nil
}

func (r *fakeMedicationRepo) Update(_ context.Context, med *model.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.meds[med.ID]
	if !ok || stored.OwnerID != med.OwnerID {
		return apperrors.NotFound("medication", nil)
	}
	copied := *med
	r.meds[med.ID] = &copied
	return nil
}

func (r *fakeMedicationRepo) SoftDelete(_ context.Context, ownerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, ok := r.meds[id]
	if !ok || med.OwnerID != ownerID {
		return apperrors.NotFound("medication", nil)
	}
	med.Active = false
	return nil
}

func (r *fakeMedicationRepo) ListActive(_ context.Context, ownerID uuid.UUID) ([]*model.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Medication
	for _, med := range r.meds {
		if med.OwnerID == ownerID && med.Active {
			copied := *med
			out = append(out, &copied)
		}
	}
	return out, nil
}

type doseKey struct {
	medicationID uuid.UUID
	scheduledAt  time.Time
}

type fakeDoseRepo struct {
	doses map[doseKey]*model.MedicationDose
	byID  map[uuid.UUID]doseKey
}

func newFakeDoseRepo() *fakeDoseRepo {
	return &fakeDoseRepo{
		doses: make(map[doseKey]*model.MedicationDose),
		byID:  make(map[uuid.UUID]doseKey),
	}
}

func (r *fakeDoseRepo) InsertBatch(_ context.Context, ownerID uuid.UUID, doses []*model.MedicationDose) (int, error) {
	inserted := 0
	for _, d := range doses {
		key := doseKey{d.MedicationID, d.ScheduledAt}
		if _, exists := r.doses[key]; exists {
			continue
		}
		stored := *d
		stored.ID = uuid.New()
		stored.OwnerID = ownerID
		r.doses[key] = &stored
		r.byID[stored.ID] = key
		inserted++
	}
	return inserted, nil
}

func (r *fakeDoseRepo) Get(_ context.Context, ownerID, id uuid.UUID) (*model.MedicationDose, error) {
	key, ok := r.byID[id]
	if !ok || r.doses[key].OwnerID != ownerID {
		return nil, apperrors.NotFound("dose", nil)
	}
	out := *r.doses[key]
	return &out, nil
}

func (r *fakeDoseRepo) ListForMedication(_ context.Context, ownerID, medicationID uuid.UUID, from, to time.Time) ([]*model.MedicationDose, error) {
	var out []*model.MedicationDose
	for _, d := range r.doses {
		if d.OwnerID != ownerID || d.MedicationID != medicationID {
			continue
		}
		if !from.IsZero() && d.ScheduledAt.Before(from) {
			continue
		}
		if !to.IsZero() && d.ScheduledAt.After(to) {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeDoseRepo) UpdateStatus(_ context.Context, ownerID, id uuid.UUID, status model.DoseStatus, takenAt *time.Time) error {
	key, ok := r.byID[id]
	if !ok || r.doses[key].OwnerID != ownerID {
		return apperrors.NotFound("dose", nil)
	}
	if r.doses[key].Status != model.DoseStatusPending {
		return apperrors.NotFound("pending dose", nil)
	}
	r.doses[key].Status = status
	r.doses[key].TakenAt = takenAt
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (r *fakeAuditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (r *fakeOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeOutboxRepo) GetPendingWithLock(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}
func (r *fakeOutboxRepo) MarkProcessed(context.Context, uuid.UUID) error          { return nil }
func (r *fakeOutboxRepo) MarkFailed(context.Context, uuid.UUID, string) error     { return nil }
func (r *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ repository.MedicationRepository = (*fakeMedicationRepo)(nil)
var _ repository.DoseRepository = (*fakeDoseRepo)(nil)
var _ repository.OutboxRepository = (*fakeOutboxRepo)(nil)

func newTestService() (*Service, *fakeMedicationRepo, *fakeDoseRepo, *fakeOutboxRepo) {
	meds := newFakeMedicationRepo()
	doses := newFakeDoseRepo()
	outbox := &fakeOutboxRepo{}
	log := logger.NewLogger(nil)
	svc := NewService(meds, doses, audit.NewService(&fakeAuditRepo{}, log), event.NewService(outbox))
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, meds, doses, outbox
}

func createRequest() *model.CreateMedicationRequest {
	return &model.CreateMedicationRequest{
		Name:      "Metformin",
		Dosage:    "500mg",
		Frequency: "twice daily",
		Route:     "oral",
	}
}

func TestCreateMedication(t *testing.T) {
	svc, _, _, outbox := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, med.ID)
	assert.True(t, med.Active)
	assert.Equal(t, model.MedicationSourceManual, med.Source)
	require.Len(t, outbox.events, 1)
	assert.Equal(t, EventMedicationCreated, outbox.events[0].EventType)
}

func TestCreateMedicationRejectsBadFrequency(t *testing.T) {
	svc, _, _, _ := newTestService()

	req := createRequest()
	req.Frequency = "whenever it rains"
	_, err := svc.Create(context.Background(), uuid.New(), req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}

func TestMedicationTenantIsolation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ownerA := uuid.New()
	ownerB := uuid.New()

	medA, err := svc.Create(context.Background(), ownerA, createRequest())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), ownerB, medA.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	listB, err := svc.List(context.Background(), ownerB)
	require.NoError(t, err)
	assert.Empty(t, listB)
}

// Interleave two owners' writes and reads concurrently and assert neither
// ever observes the other's rows.
func TestMedicationTenantIsolationUnderInterleaving(t *testing.T) {
	svc, _, _, _ := newTestService()
	ownerA := uuid.New()
	ownerB := uuid.New()

	const perOwner = 25
	var wg sync.WaitGroup
	for i := 0; i < perOwner; i++ {
		for _, ownerID := range []uuid.UUID{ownerA, ownerB} {
			wg.Add(1)
			go func(ownerID uuid.UUID, i int) {
				defer wg.Done()
				req := createRequest()
				req.Name = fmt.Sprintf("med-%s-%d", ownerID, i)
				_, err := svc.Create(context.Background(), ownerID, req)
				assert.NoError(t, err)

				list, err := svc.List(context.Background(), ownerID)
				assert.NoError(t, err)
				for _, med := range list {
					assert.Equal(t, ownerID, med.OwnerID)
				}
			}(ownerID, i)
		}
	}
	wg.Wait()

	for _, ownerID := range []uuid.UUID{ownerA, ownerB} {
		list, err := svc.List(context.Background(), ownerID)
		require.NoError(t, err)
		assert.Len(t, list, perOwner)
		for _, med := range list {
			assert.Equal(t, ownerID, med.OwnerID)
		}
	}
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	svc, meds, _, _ := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), ownerID, med.ID))
	require.NoError(t, svc.Delete(context.Background(), ownerID, med.ID))

	assert.False(t, meds.meds[med.ID].Active)

	// Row survives the delete, only hidden from active listings.
	list, err := svc.List(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGenerateDosesIsIdempotent(t *testing.T) {
	svc, _, doses, _ := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)

	first, err := svc.GenerateDoses(context.Background(), ownerID, med.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 14, first)

	second, err := svc.GenerateDoses(context.Background(), ownerID, med.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
	assert.Len(t, doses.doses, 14)
}

func TestGenerateDosesContinuesIntervalSequenceAcrossDays(t *testing.T) {
	svc, meds, _, _ := newTestService()
	ownerID := uuid.New()

	req := createRequest()
	req.Frequency = "every 9 hours"
	med, err := svc.Create(context.Background(), ownerID, req)
	require.NoError(t, err)
	meds.meds[med.ID].CreatedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err = svc.GenerateDoses(context.Background(), ownerID, med.ID, 2)
	require.NoError(t, err)

	// A run two days later continues the original 9h sequence.
	svc.now = func() time.Time { return time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC) }
	_, err = svc.GenerateDoses(context.Background(), ownerID, med.ID, 2)
	require.NoError(t, err)

	listed, err := svc.ListDoses(context.Background(), ownerID, med.ID,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	times := make([]time.Time, len(listed))
	for i, d := range listed {
		times[i] = d.ScheduledAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	require.NotEmpty(t, times)
	for i := 1; i < len(times); i++ {
		assert.Equal(t, 9*time.Hour, times[i].Sub(times[i-1]), "sequence drifted at slot %d", i)
	}
}

func TestGenerateDosesPreservesTakenStatus(t *testing.T) {
	svc, _, doses, _ := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)

	_, err = svc.GenerateDoses(context.Background(), ownerID, med.ID, 2)
	require.NoError(t, err)

	var doseID uuid.UUID
	for id := range doses.byID {
		doseID = id
		break
	}
	_, err = svc.MarkDose(context.Background(), ownerID, doseID, model.DoseStatusTaken)
	require.NoError(t, err)

	// Regenerating over the same window must not reset the taken dose.
	_, err = svc.GenerateDoses(context.Background(), ownerID, med.ID, 2)
	require.NoError(t, err)

	dose, err := doses.Get(context.Background(), ownerID, doseID)
	require.NoError(t, err)
	assert.Equal(t, model.DoseStatusTaken, dose.Status)
}

func TestGenerateDosesRejectsInactiveMedication(t *testing.T) {
	svc, _, _, _ := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), ownerID, med.ID))

	_, err = svc.GenerateDoses(context.Background(), ownerID, med.ID, 7)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}

func TestGenerateDosesAsNeeded(t *testing.T) {
	svc, _, _, _ := newTestService()
	ownerID := uuid.New()

	req := createRequest()
	req.Frequency = "as needed"
	med, err := svc.Create(context.Background(), ownerID, req)
	require.NoError(t, err)

	inserted, err := svc.GenerateDoses(context.Background(), ownerID, med.ID, 7)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestMarkDoseFlipsOnce(t *testing.T) {
	svc, _, doses, _ := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)
	_, err = svc.GenerateDoses(context.Background(), ownerID, med.ID, 1)
	require.NoError(t, err)

	var doseID uuid.UUID
	for id := range doses.byID {
		doseID = id
		break
	}

	dose, err := svc.MarkDose(context.Background(), ownerID, doseID, model.DoseStatusTaken)
	require.NoError(t, err)
	assert.Equal(t, model.DoseStatusTaken, dose.Status)
	assert.NotNil(t, dose.TakenAt)

	_, err = svc.MarkDose(context.Background(), ownerID, doseID, model.DoseStatusMissed)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}

func TestUpdateMedicationRejectsBadFrequency(t *testing.T) {
	svc, _, _, _ := newTestService()
	ownerID := uuid.New()

	med, err := svc.Create(context.Background(), ownerID, createRequest())
	require.NoError(t, err)

	bad := "sometimes"
	_, err = svc.Update(context.Background(), ownerID, med.ID, &model.UpdateMedicationRequest{Frequency: &bad})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidationFailed))
}
