package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/payout-settlement/internal/model"
)

type AuditLogRepositoryInterface interface {
	Append(ctx context.Context, entry *model.AuditLogEntry) error
}

// AuditLogRepository only ever inserts; the table rejects updates and deletes.
type AuditLogRepository struct {
	DB *sql.DB
}

func (r *AuditLogRepository) Append(ctx context.Context, e *model.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, actor_id, campaign_id, payout_id, reason, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Action, e.ActorID, e.CampaignID, e.PayoutID, e.Reason, e.Notes, e.CreatedAt,
	)
	return err
}

var _ AuditLogRepositoryInterface = (*AuditLogRepository)(nil)
