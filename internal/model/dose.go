package model

import (
	"time"

	"github.com/google/uuid"
)

type DoseStatus string

const (
	DoseStatusPending DoseStatus = "pending"
	DoseStatusTaken   DoseStatus = "taken"
	DoseStatusMissed  DoseStatus = "missed"
)

// MedicationDose is a scheduled instance of taking a medication. Status flips
// away from pending exactly once.
type MedicationDose struct {
	Base
	MedicationID uuid.UUID  `json:"medication_id" db:"medication_id"`
	OwnerID      uuid.UUID  `json:"owner_id" db:"owner_id"`
	ScheduledAt  time.Time  `json:"scheduled_at" db:"scheduled_at"`
	Status       DoseStatus `json:"status" db:"status"`
	TakenAt      *time.Time `json:"taken_at" db:"taken_at"`
}

// CanTransition reports whether a dose status change is allowed.
func (s DoseStatus) CanTransition(to DoseStatus) bool {
	return s == DoseStatusPending && (to == DoseStatusTaken || to == DoseStatusMissed)
}

type UpdateDoseStatusRequest struct {
	Status DoseStatus `json:"status" binding:"required,oneof=taken missed"`
}
