package model

import (
	"github.com/google/uuid"
)

// Medication source constants
const (
	MedicationSourceManual = "manual_entry"
	MedicationSourceScan   = "ocr_scan"
	MedicationSourceImport = "import"
)

// Medication is a prescribed item owned by exactly one user. Deletion is a
// soft flag flip; rows are never physically removed.
type Medication struct {
	Base
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	GenericName *string   `json:"generic_name" db:"generic_name"`
	Dosage      string    `json:"dosage" db:"dosage"`
	Frequency   string    `json:"frequency" db:"frequency"`
	Route       string    `json:"route" db:"route"`
	Prescriber  *string   `json:"prescriber" db:"prescriber"`
	Pharmacy    *string   `json:"pharmacy" db:"pharmacy"`
	Source      string    `json:"source" db:"source"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Notes       *string   `json:"notes" db:"notes"`
	Active      bool      `json:"active" db:"active"`
}

type CreateMedicationRequest struct {
	Name        string  `json:"name" binding:"required"`
	GenericName *string `json:"generic_name"`
	Dosage      string  `json:"dosage" binding:"required"`
	Frequency   string  `json:"frequency" binding:"required"`
	Route       string  `json:"route"`
	Prescriber  *string `json:"prescriber"`
	Pharmacy    *string `json:"pharmacy"`
	Source      string  `json:"source" binding:"omitempty,oneof=manual_entry ocr_scan import"`
	Confidence  float64 `json:"confidence"`
	Notes       *string `json:"notes"`
}

type UpdateMedicationRequest struct {
	Name        *string  `json:"name"`
	GenericName *string  `json:"generic_name"`
	Dosage      *string  `json:"dosage"`
	Frequency   *string  `json:"frequency"`
	Route       *string  `json:"route"`
	Prescriber  *string  `json:"prescriber"`
	Pharmacy    *string  `json:"pharmacy"`
	Confidence  *float64 `json:"confidence"`
	Notes       *string  `json:"notes"`
}
