package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medtrack/server/internal/repository"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/metrics"
)

// TenantGate binds the session-scoped tenant marker the backend's row-level
// policies read. Marker and statements share one transaction on one physical
// connection, and set_config's is_local flag scopes the marker to that
// transaction, so a pooled connection handed to another tenant afterwards
// carries nothing over. A failure to bind aborts before any statement runs.
type TenantGate struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewTenantGate(db *sqlx.DB, m *metrics.Metrics) *TenantGate {
	return &TenantGate{db: db, metrics: m}
}

var _ repository.TenantGate = (*TenantGate)(nil)

func (g *TenantGate) WithTenant(ctx context.Context, tenantID uuid.UUID, fn func(repository.Conn) error) error {
	if tenantID == uuid.Nil {
		return apperrors.ContextUnavailable(nil)
	}
	return g.scoped(ctx, "with_tenant", "app.current_tenant_id", tenantID.String(), fn)
}

func (g *TenantGate) WithIdentity(ctx context.Context, identityID string, fn func(repository.Conn) error) error {
	if identityID == "" {
		return apperrors.ContextUnavailable(nil)
	}
	return g.scoped(ctx, "with_identity", "app.current_identity_id", identityID, fn)
}

func (g *TenantGate) scoped(ctx context.Context, op, marker, value string, fn func(repository.Conn) error) error {
	start := time.Now()

	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		g.markerFailure()
		g.observe(op, "error", start)
		return apperrors.ContextUnavailable(err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT set_config($1, $2, true)`, marker, value); err != nil {
		tx.Rollback()
		g.markerFailure()
		g.observe(op, "error", start)
		return apperrors.ContextUnavailable(err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		g.observe(op, "error", start)
		return err
	}

	if err := tx.Commit(); err != nil {
		g.observe(op, "error", start)
		return apperrors.BackendUnreachable(err)
	}
	g.observe(op, "success", start)
	return nil
}

func (g *TenantGate) markerFailure() {
	if g.metrics != nil {
		g.metrics.TenantScopeFailures.Inc()
	}
}

func (g *TenantGate) observe(op, status string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
	g.metrics.DatabaseLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
