package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
	"github.com/medtrack/server/internal/service/audit"
	"github.com/medtrack/server/internal/service/event"
	apperrors "github.com/medtrack/server/pkg/errors"
)

const EventAppointmentStatusChanged = "appointment.status_changed"

type Service struct {
	repo    repository.AppointmentRepository
	auditor *audit.Service
	events  *event.Service
}

func NewService(repo repository.AppointmentRepository, auditor *audit.Service, events *event.Service) *Service {
	return &Service{repo: repo, auditor: auditor, events: events}
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if req.ScheduledFor.IsZero() {
		return nil, apperrors.ValidationFailed("scheduled_for is required", nil)
	}
	if !isParty(tenantID, req.PatientID, req.ProviderID) {
		return nil, apperrors.Forbidden("appointment must be created by its patient or provider", nil)
	}
	appt := &model.Appointment{
		PatientID:    req.PatientID,
		ProviderID:   req.ProviderID,
		ScheduledFor: req.ScheduledFor,
		Status:       model.AppointmentStatusScheduled,
		Reason:       req.Reason,
		Notes:        req.Notes,
	}
	if err := s.repo.Create(ctx, tenantID, appt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	s.auditor.Log(ctx, tenantID, model.AuditActionCreate, model.AuditEntityAppointment, appt.ID, nil)
	return appt, nil
}

// isParty reports whether the tenant is one of the appointment's two sides.
func isParty(tenantID, patientID uuid.UUID, providerID *uuid.UUID) bool {
	if tenantID == patientID {
		return true
	}
	return providerID != nil && tenantID == *providerID
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns every appointment the tenant participates in, as patient or
// as provider.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*model.Appointment, error) {
	return s.repo.List(ctx, tenantID)
}

// UpdateStatus moves a scheduled appointment to a terminal status. The
// transition is enforced in the update predicate itself, so two concurrent
// callers cannot both win.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, to model.AppointmentStatus) (*model.Appointment, error) {
	appt, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransition(to) {
		return nil, apperrors.ValidationFailed(fmt.Sprintf("cannot change appointment status from %s to %s", appt.Status, to), nil)
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, appt.Status, to); err != nil {
		return nil, err
	}
	appt.Status = to
	s.auditor.Log(ctx, tenantID, model.AuditActionUpdate, model.AuditEntityAppointment, id, map[string]string{
		"status": string(to),
	})
	if err := s.events.Emit(ctx, EventAppointmentStatusChanged, appt); err != nil {
		return nil, err
	}
	return appt, nil
}
