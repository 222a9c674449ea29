package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/queue"
	"github.com/unclebandit/payout-settlement/internal/repository"
)

// PayoutExecutor runs the gateway transfer for an approved payout.
type PayoutExecutor interface {
	Execute(ctx context.Context, payoutID string) (*model.Payout, error)
}

type PayoutService struct {
	PayoutRepo repository.PayoutRepositoryInterface
	UserRepo   repository.UserRepositoryInterface
	Executor   PayoutExecutor
	Audit      *AuditLogger
	Queue      queue.Queue
	Logger     *zap.Logger
	MaxRetries int
	Now        func() time.Time
}

type RequestPayoutInput struct {
	CampaignID  string `json:"campaign_id"`
	MomoNumber  string `json:"momo_number"`
	MomoNetwork string `json:"momo_network"`
}

type RequestPayoutResult struct {
	PayoutID string             `json:"payout_id"`
	Status   model.PayoutStatus `json:"status"`
	Amount   decimal.Decimal    `json:"amount"`
	Message  string             `json:"message"`
}

// ActionResult is the outcome of an admin or retry action.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RequestPayout creates the campaign's payout. Creators with a verified
// account and a completed payout behind them skip manual review.
func (s *PayoutService) RequestPayout(ctx context.Context, actor model.Actor, in RequestPayoutInput) (*RequestPayoutResult, error) {
	if actor.ID == "" {
		return nil, appErrors.Unauthenticated("authentication required")
	}
	in.CampaignID = strings.TrimSpace(in.CampaignID)
	in.MomoNumber = strings.TrimSpace(in.MomoNumber)
	in.MomoNetwork = strings.TrimSpace(in.MomoNetwork)
	if in.CampaignID == "" || in.MomoNumber == "" || in.MomoNetwork == "" {
		return nil, appErrors.InvalidArgument("campaign_id, momo_number and momo_network are required")
	}

	initial, err := s.initialStatus(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check creator history")
	}

	now := s.now()
	payout, err := s.PayoutRepo.CreateForCampaign(ctx, in.CampaignID, func(c *model.Campaign, hasActive bool) (*model.Payout, error) {
		if c.OwnerID != actor.ID {
			return nil, appErrors.PermissionDenied("only the campaign owner can request a payout")
		}
		if c.Status == model.CampaignFrozen {
			return nil, appErrors.FailedPrecondition("campaign is frozen")
		}
		if !c.HasEnded(now) && !c.ReachedGoal() {
			return nil, appErrors.FailedPrecondition("campaign has not ended or reached its goal")
		}
		if !c.RaisedAmount.IsPositive() {
			return nil, appErrors.FailedPrecondition("no funds available for payout")
		}
		if hasActive {
			return nil, appErrors.AlreadyExists("a payout has already been requested for this campaign")
		}
		return &model.Payout{
			ID:                  uuid.NewString(),
			CampaignID:          c.ID,
			CreatorID:           actor.ID,
			Amount:              c.RaisedAmount,
			PlatformFeeDeducted: c.TotalFeesCollected,
			MomoNetwork:         in.MomoNetwork,
			MomoNumber:          in.MomoNumber,
			Status:              initial,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log := s.Logger.With(zap.String("payout_id", payout.ID), zap.String("campaign_id", payout.CampaignID))
	log.Info("payout requested", zap.String("status", string(payout.Status)), zap.String("amount", payout.Amount.String()))
	s.publishCampaignWrite(log, payout.CampaignID)

	result := &RequestPayoutResult{
		PayoutID: payout.ID,
		Status:   payout.Status,
		Amount:   payout.Amount,
		Message:  "Payout request submitted for review",
	}
	if payout.Status != model.PayoutApproved {
		return result, nil
	}

	updated, err := s.Executor.Execute(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	result.Status = updated.Status
	result.Message = "Payout approved and transfer initiated"
	return result, nil
}

func (s *PayoutService) initialStatus(ctx context.Context, creatorID string) (model.PayoutStatus, error) {
	user, err := s.UserRepo.GetByID(ctx, creatorID)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsVerified {
		return model.PayoutPendingReview, nil
	}
	completed, err := s.PayoutRepo.CountCompletedByCreator(ctx, creatorID)
	if err != nil {
		return "", err
	}
	if completed > 0 {
		return model.PayoutApproved, nil
	}
	return model.PayoutPendingReview, nil
}

// RetryPayout puts a failed payout back to approved and runs the transfer again.
func (s *PayoutService) RetryPayout(ctx context.Context, actor model.Actor, payoutID string) (*ActionResult, error) {
	if actor.ID == "" {
		return nil, appErrors.Unauthenticated("authentication required")
	}
	p, err := s.PayoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.CreatorID != actor.ID && !actor.IsAdmin() {
		return nil, appErrors.PermissionDenied("only the payout owner or an admin can retry")
	}
	if p.Status != model.PayoutFailed {
		return nil, appErrors.FailedPrecondition("only failed payouts can be retried")
	}
	if p.RetryCount >= s.maxRetries() {
		return nil, appErrors.FailedPrecondition("Maximum retry attempts reached")
	}

	cleared := ""
	_, err = s.PayoutRepo.Transition(ctx, p.ID, repository.PayoutTransition{
		From:                   []model.PayoutStatus{model.PayoutFailed},
		To:                     model.PayoutApproved,
		MaxRetryCount:          s.maxRetries(),
		FailureReason:          &cleared,
		ClearTransferReference: true,
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrStaleTransition) {
			return nil, appErrors.FailedPrecondition("payout can no longer be retried")
		}
		return nil, err
	}

	s.Audit.Record(ctx, model.AuditLogEntry{
		Action:     model.AuditRetryPayout,
		ActorID:    actor.ID,
		CampaignID: p.CampaignID,
		PayoutID:   p.ID,
	})
	s.Logger.Info("payout retry started",
		zap.String("payout_id", p.ID),
		zap.Int("retry_count", p.RetryCount),
	)

	if _, err := s.Executor.Execute(ctx, p.ID); err != nil {
		return nil, err
	}
	return &ActionResult{Success: true, Message: "Payout retry initiated"}, nil
}

func (s *PayoutService) publishCampaignWrite(log *zap.Logger, campaignID string) {
	if s.Queue == nil {
		return
	}
	if err := queue.PublishJSON(s.Queue, queue.TopicCampaignWrites, queue.CampaignWrite{CampaignID: campaignID}); err != nil {
		log.Warn("publish campaign write", zap.Error(err))
	}
}

func (s *PayoutService) maxRetries() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return 3
}

func (s *PayoutService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
