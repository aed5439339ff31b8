package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/server/internal/model"
)

// Conn is the scoped statement surface handed to gate callbacks. *sqlx.Tx
// satisfies it; fakes in tests satisfy it too.
type Conn interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TenantGate binds a tenant marker to the database session before any scoped
// statement runs. The marker and the callback execute as one atomic unit of
// work on one connection; no statement from another tenant can interleave.
// If the marker cannot be bound the callback never runs and the call fails
// with ContextUnavailable.
type TenantGate interface {
	// WithTenant scopes fn to rows owned by tenantID.
	WithTenant(ctx context.Context, tenantID uuid.UUID, fn func(Conn) error) error
	// WithIdentity scopes fn to the identity-provider id instead. Used for
	// first-contact operations on the users table, before a tenant row
	// exists.
	WithIdentity(ctx context.Context, identityID string, fn func(Conn) error) error
}

type UserRepository interface {
	SyncIdentity(ctx context.Context, req *model.SyncIdentityRequest) (*model.User, error)
	GetByIdentity(ctx context.Context, identityID string) (*model.User, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*model.User, error)
	EnsurePatientProfile(ctx context.Context, tenantID uuid.UUID) (*model.PatientProfile, error)
	EnsureProviderProfile(ctx context.Context, tenantID uuid.UUID, licenseNumber string) (*model.ProviderProfile, error)
	UpdatePatientProfile(ctx context.Context, tenantID uuid.UUID, profile *model.PatientProfile) error
}

type MedicationRepository interface {
	Create(ctx context.Context, med *model.Medication) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Medication, error)
	Update(ctx context.Context, med *model.Medication) error
	SoftDelete(ctx context.Context, ownerID, id uuid.UUID) error
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*model.Medication, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, tenantID uuid.UUID, appt *model.Appointment) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*model.Appointment, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.AppointmentStatus) error
}

type DocumentRepository interface {
	Insert(ctx context.Context, doc *model.MedicalDocument) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.MedicalDocument, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*model.MedicalDocument, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	EnqueueCleanup(ctx context.Context, locator, reason string) error
	PendingCleanup(ctx context.Context, limit int) ([]*model.BlobCleanupEntry, error)
	MarkRemoved(ctx context.Context, id uuid.UUID) error
	RecordAttempt(ctx context.Context, id uuid.UUID) error
}

type DoseRepository interface {
	InsertBatch(ctx context.Context, ownerID uuid.UUID, doses []*model.MedicationDose) (int, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.MedicationDose, error)
	ListForMedication(ctx context.Context, ownerID, medicationID uuid.UUID, from, to time.Time) ([]*model.MedicationDose, error)
	UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status model.DoseStatus, takenAt *time.Time) error
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
}
