package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
)

type auditRepository struct {
	gate repository.TenantGate
}

func NewAuditRepository(gate repository.TenantGate) repository.AuditRepository {
	return &auditRepository{gate: gate}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	log.CreatedAt = time.Now()
	return r.gate.WithTenant(ctx, log.UserID, func(c repository.Conn) error {
		_, err := c.ExecContext(ctx, query,
			log.ID,
			log.UserID,
			log.Action,
			log.EntityType,
			log.EntityID,
			log.Metadata,
			log.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create audit log: %w", err)
		}
		return nil
	})
}
