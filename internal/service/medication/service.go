package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/internal/service/audit"
	"github.com/medtrack/server/internal/service/event"
	apperrors "github.com/medtrack/server/pkg/errors"
)

const (
	EventMedicationCreated = "medication.created"
	EventMedicationDeleted = "medication.deleted"
)

// DefaultHorizonDays is how far ahead doses are generated when the caller
// does not say.
const DefaultHorizonDays = 7

type Service struct {
	meds    repository.MedicationRepository
	doses   repository.DoseRepository
	auditor *audit.Service
	events  *event.Service
	now     func() time.Time
}

func NewService(meds repository.MedicationRepository, doses repository.DoseRepository, auditor *audit.Service, events *event.Service) *Service {
	return &Service{
		meds:    meds,
		doses:   doses,
		auditor: auditor,
		events:  events,
		now:     time.Now,
	}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req *model.CreateMedicationRequest) (*model.Medication, error) {
	if _, err := ParseFrequency(req.Frequency); err != nil {
		return nil, apperrors.ValidationFailed("invalid frequency", err)
	}
	source := req.Source
	if source == "" {
		source = model.MedicationSourceManual
	}
	med := &model.Medication{
		OwnerID:     ownerID,
		Name:        req.Name,
		GenericName: req.GenericName,
		Dosage:      req.Dosage,
		Frequency:   req.Frequency,
		Route:       req.Route,
		Prescriber:  req.Prescriber,
		Pharmacy:    req.Pharmacy,
		Source:      source,
		Confidence:  req.Confidence,
		Notes:       req.Notes,
		Active:      true,
	}
	if err := s.meds.Create(ctx, med); err != nil {
		return nil, fmt.Errorf("failed to create medication: %w", err)
	}
	s.auditor.Log(ctx, ownerID, model.AuditActionCreate, model.AuditEntityMedication, med.ID, map[string]string{
		"name": med.Name,
	})
	if err := s.events.Emit(ctx, EventMedicationCreated, med); err != nil {
		return nil, err
	}
	return med, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Medication, error) {
	return s.meds.Get(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*model.Medication, error) {
	return s.meds.ListActive(ctx, ownerID)
}

func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, req *model.UpdateMedicationRequest) (*model.Medication, error) {
	med, err := s.meds.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Frequency != nil {
		if _, err := ParseFrequency(*req.Frequency); err != nil {
			return nil, apperrors.ValidationFailed("invalid frequency", err)
		}
		med.Frequency = *req.Frequency
	}
	if req.Name != nil {
		med.Name = *req.Name
	}
	if req.GenericName != nil {
		med.GenericName = req.GenericName
	}
	if req.Dosage != nil {
		med.Dosage = *req.Dosage
	}
	if req.Route != nil {
		med.Route = *req.Route
	}
	if req.Prescriber != nil {
		med.Prescriber = req.Prescriber
	}
	if req.Pharmacy != nil {
		med.Pharmacy = req.Pharmacy
	}
	if req.Confidence != nil {
		med.Confidence = *req.Confidence
	}
	if req.Notes != nil {
		med.Notes = req.Notes
	}
	if err := s.meds.Update(ctx, med); err != nil {
		return nil, fmt.Errorf("failed to update medication: %w", err)
	}
	s.auditor.Log(ctx, ownerID, model.AuditActionUpdate, model.AuditEntityMedication, med.ID, nil)
	return med, nil
}

// Delete flips the active flag. Deleting an already deleted medication is a
// no-op, not an error.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.meds.SoftDelete(ctx, ownerID, id); err != nil {
		return err
	}
	s.auditor.Log(ctx, ownerID, model.AuditActionDelete, model.AuditEntityMedication, id, nil)
	return s.events.Emit(ctx, EventMedicationDeleted, map[string]string{"id": id.String()})
}

// GenerateDoses expands the medication's frequency into pending dose rows
// over the horizon. Re-running over an overlapping window inserts only the
// slots that do not exist yet; existing rows, taken or not, are untouched.
// Returns the number of rows actually inserted.
func (s *Service) GenerateDoses(ctx context.Context, ownerID, medicationID uuid.UUID, horizonDays int) (int, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	med, err := s.meds.Get(ctx, ownerID, medicationID)
	if err != nil {
		return 0, err
	}
	if !med.Active {
		return 0, apperrors.ValidationFailed("cannot generate doses for an inactive medication", nil)
	}
	sched, err := ParseFrequency(med.Frequency)
	if err != nil {
		return 0, apperrors.ValidationFailed("invalid frequency", err)
	}
	anchor := med.CreatedAt
	if anchor.IsZero() {
		anchor = s.now()
	}
	slots := sched.Expand(anchor.UTC(), s.now().UTC(), horizonDays)
	if len(slots) == 0 {
		return 0, nil
	}
	doses := make([]*model.MedicationDose, len(slots))
	for i, at := range slots {
		doses[i] = &model.MedicationDose{
			MedicationID: med.ID,
			OwnerID:      ownerID,
			ScheduledAt:  at,
			Status:       model.DoseStatusPending,
		}
	}
	inserted, err := s.doses.InsertBatch(ctx, ownerID, doses)
	if err != nil {
		return 0, fmt.Errorf("failed to insert doses: %w", err)
	}
	return inserted, nil
}

func (s *Service) ListDoses(ctx context.Context, ownerID, medicationID uuid.UUID, from, to time.Time) ([]*model.MedicationDose, error) {
	if to.IsZero() {
		to = s.now().UTC().AddDate(0, 0, DefaultHorizonDays)
	}
	return s.doses.ListForMedication(ctx, ownerID, medicationID, from, to)
}

// MarkDose flips a pending dose to taken or missed. A dose that has already
// left pending cannot be flipped again.
func (s *Service) MarkDose(ctx context.Context, ownerID, doseID uuid.UUID, status model.DoseStatus) (*model.MedicationDose, error) {
	dose, err := s.doses.Get(ctx, ownerID, doseID)
	if err != nil {
		return nil, err
	}
	if !dose.Status.CanTransition(status) {
		return nil, apperrors.ValidationFailed(fmt.Sprintf("cannot change dose status from %s to %s", dose.Status, status), nil)
	}
	var takenAt *time.Time
	if status == model.DoseStatusTaken {
		t := s.now().UTC()
		takenAt = &t
	}
	if err := s.doses.UpdateStatus(ctx, ownerID, doseID, status, takenAt); err != nil {
		return nil, err
	}
	dose.Status = status
	dose.TakenAt = takenAt
	s.auditor.Log(ctx, ownerID, model.AuditActionUpdate, model.AuditEntityDose, doseID, map[string]string{
		"status": string(status),
	})
	return dose, nil
}
