package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/repository"
)

// PayoutResumer re-drives payouts left in approved by a crash between the
// approval commit and the transfer call.
type PayoutResumer struct {
	PayoutRepo repository.PayoutRepositoryInterface
	Executor   PayoutExecutor
	Logger     *zap.Logger
	// Grace must exceed the gateway timeout so in-flight requests are not claimed.
	Grace     time.Duration
	BatchSize int
	Now       func() time.Time
}

// RunOnce claims one batch of stale payouts and executes each. It returns the
// number of payouts that reached processing.
func (r *PayoutResumer) RunOnce(ctx context.Context) int {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	limit := r.BatchSize
	if limit <= 0 {
		limit = 20
	}

	ids, err := r.PayoutRepo.ClaimStaleApproved(ctx, now().Add(-r.Grace), limit)
	if err != nil {
		r.Logger.Error("claim stale approved payouts", zap.Error(err))
		return 0
	}

	resumed := 0
	for _, id := range ids {
		if _, err := r.Executor.Execute(ctx, id); err != nil {
			r.Logger.Warn("resume payout", zap.String("payout_id", id), zap.Error(err))
			continue
		}
		resumed++
	}
	if len(ids) > 0 {
		r.Logger.Info("stale payouts resumed", zap.Int("claimed", len(ids)), zap.Int("resumed", resumed))
	}
	return resumed
}
