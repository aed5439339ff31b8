package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

// Appointment is a scheduled interaction between a patient and a provider.
// It is visible to both sides; ProviderID may be unset until a provider is
// assigned.
type Appointment struct {
	Base
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	ProviderID   *uuid.UUID        `db:"provider_id" json:"provider_id,omitempty"`
	ScheduledFor time.Time         `db:"scheduled_for" json:"scheduled_for"`
	Status       AppointmentStatus `db:"status" json:"status"`
	Reason       *string           `db:"reason" json:"reason,omitempty"`
	Notes        *string           `db:"notes" json:"notes,omitempty"`
}

// CanTransition reports whether an appointment status change is allowed.
// All transitions leave scheduled and are terminal.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	if s != AppointmentStatusScheduled {
		return false
	}
	switch to {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type CreateAppointmentRequest struct {
	PatientID    uuid.UUID  `json:"patient_id" binding:"required"`
	ProviderID   *uuid.UUID `json:"provider_id"`
	ScheduledFor time.Time  `json:"scheduled_for" binding:"required"`
	Reason       *string    `json:"reason"`
	Notes        *string    `json:"notes"`
}

type UpdateAppointmentStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=completed cancelled no_show"`
}
