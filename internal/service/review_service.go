package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/repository"
)

var (
	approvableStatuses = []model.PayoutStatus{model.PayoutPendingReview, model.PayoutOnHold}
	rejectableStatuses = []model.PayoutStatus{model.PayoutPendingReview, model.PayoutApproved, model.PayoutFailed, model.PayoutOnHold}
	holdableStatuses   = []model.PayoutStatus{model.PayoutPendingReview, model.PayoutApproved, model.PayoutFailed}
)

// ReviewService is the admin gate in front of the transfer orchestrator.
type ReviewService struct {
	PayoutRepo repository.PayoutRepositoryInterface
	Executor   PayoutExecutor
	Audit      *AuditLogger
	Logger     *zap.Logger
}

// Approve releases a payout awaiting review, or one that was put on hold, and
// initiates the transfer.
func (s *ReviewService) Approve(ctx context.Context, actor model.Actor, payoutID, notes string) (*ActionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)

	t := repository.PayoutTransition{
		From:       approvableStatuses,
		To:         model.PayoutApproved,
		ApprovedBy: actor.ID,
	}
	if notes != "" {
		t.AdminNotes = &notes
	}
	p, err := s.transition(ctx, payoutID, t, "approved")
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, model.AuditLogEntry{
		Action:     model.AuditApprovePayout,
		ActorID:    actor.ID,
		CampaignID: p.CampaignID,
		PayoutID:   p.ID,
		Notes:      notes,
	})
	s.Logger.Info("payout approved", zap.String("payout_id", p.ID), zap.String("admin_id", actor.ID))

	if _, err := s.Executor.Execute(ctx, p.ID); err != nil {
		return nil, err
	}
	return &ActionResult{Success: true, Message: "Payout approved and transfer initiated"}, nil
}

func (s *ReviewService) Reject(ctx context.Context, actor model.Actor, payoutID, reason string) (*ActionResult, error) {
	return s.pause(ctx, actor, payoutID, reason, rejectableStatuses, model.PayoutRejected, model.AuditRejectPayout, "rejected")
}

func (s *ReviewService) Hold(ctx context.Context, actor model.Actor, payoutID, reason string) (*ActionResult, error) {
	return s.pause(ctx, actor, payoutID, reason, holdableStatuses, model.PayoutOnHold, model.AuditHoldPayout, "put on hold")
}

func (s *ReviewService) pause(
	ctx context.Context,
	actor model.Actor,
	payoutID, reason string,
	from []model.PayoutStatus,
	to model.PayoutStatus,
	action model.AuditAction,
	verb string,
) (*ActionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.InvalidArgument("reason is required")
	}

	p, err := s.transition(ctx, payoutID, repository.PayoutTransition{
		From:       from,
		To:         to,
		AdminNotes: &reason,
	}, verb)
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, model.AuditLogEntry{
		Action:     action,
		ActorID:    actor.ID,
		CampaignID: p.CampaignID,
		PayoutID:   p.ID,
		Reason:     reason,
	})
	s.Logger.Info("payout "+verb,
		zap.String("payout_id", p.ID),
		zap.String("admin_id", actor.ID),
		zap.String("reason", reason),
	)
	return &ActionResult{Success: true, Message: "Payout " + verb}, nil
}

// transition applies t and turns a lost compare-and-set into a message naming
// the status the payout is actually in.
func (s *ReviewService) transition(ctx context.Context, payoutID string, t repository.PayoutTransition, verb string) (*model.Payout, error) {
	p, err := s.PayoutRepo.Transition(ctx, payoutID, t)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, appErrors.ErrStaleTransition) {
		return nil, err
	}
	current, gerr := s.PayoutRepo.GetByID(ctx, payoutID)
	if gerr != nil {
		return nil, gerr
	}
	return nil, appErrors.FailedPrecondition("payout is %s and cannot be %s", current.Status, verb)
}

func requireAdmin(actor model.Actor) error {
	if actor.ID == "" {
		return appErrors.Unauthenticated("authentication required")
	}
	if !actor.IsAdmin() {
		return appErrors.PermissionDenied("admin role required")
	}
	return nil
}
