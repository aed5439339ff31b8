package model

import (
	"time"

	"github.com/google/uuid"
)

// Role constants. Role is confirmed by the backend, never taken from the
// identity token alone.
const (
	RolePatient  = "patient"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// ValidRole reports whether r is a known authorization domain.
func ValidRole(r string) bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// User is the backend's record of an authenticated principal. IdentityID is
// the identity provider's opaque id and is unique per user; User.ID is the
// tenant id that scopes every owned row.
type User struct {
	Base
	IdentityID  string  `json:"identity_id" db:"identity_id"`
	Email       string  `json:"email" db:"email"`
	DisplayName string  `json:"display_name" db:"display_name"`
	FirstName   *string `json:"first_name" db:"first_name"`
	LastName    *string `json:"last_name" db:"last_name"`
	Role        string  `json:"role" db:"role"`
}

// SyncIdentityRequest carries the identity-provider fields upserted on every
// sign-in.
type SyncIdentityRequest struct {
	IdentityID  string `json:"identity_id" binding:"required" validate:"required"`
	Email       string `json:"email" binding:"required,email" validate:"required,email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// PatientProfile is the role-specific extension of a patient user, created
// lazily once the role is first confirmed.
type PatientProfile struct {
	Base
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	DateOfBirth     *time.Time `json:"date_of_birth" db:"date_of_birth"`
	Allergies       *string    `json:"allergies" db:"allergies"`
	Conditions      *string    `json:"conditions" db:"conditions"`
	EmergencyPhone  *string    `json:"emergency_phone" db:"emergency_phone" validate:"omitempty,e164"`
	PrimaryPharmacy *string    `json:"primary_pharmacy" db:"primary_pharmacy"`
}

// ProviderProfile is the role-specific extension of a provider user.
type ProviderProfile struct {
	Base
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	LicenseNumber string    `json:"license_number" db:"license_number"`
	Specialty     *string   `json:"specialty" db:"specialty"`
	Clinic        *string   `json:"clinic" db:"clinic"`
}
