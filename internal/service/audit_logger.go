package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/repository"
)

// AuditLogger appends audit entries. A failed write is logged and never
// propagated to the action being audited.
type AuditLogger struct {
	Repo   repository.AuditLogRepositoryInterface
	Logger *zap.Logger
}

func (a *AuditLogger) Record(ctx context.Context, entry model.AuditLogEntry) {
	if err := a.Repo.Append(ctx, &entry); err != nil {
		a.Logger.Error("audit log write failed",
			zap.String("action", string(entry.Action)),
			zap.String("actor_id", entry.ActorID),
			zap.String("payout_id", entry.PayoutID),
			zap.Error(err),
		)
	}
}
