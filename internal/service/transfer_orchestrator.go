package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/gateway"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/repository"
)

// TransferOrchestrator moves an approved payout through recipient
// registration and transfer initiation at the gateway.
type TransferOrchestrator struct {
	PayoutRepo repository.PayoutRepositoryInterface
	Gateway    gateway.Gateway
	Networks   gateway.NetworkTable
	Logger     *zap.Logger
	Now        func() time.Time
}

// Execute runs both phases for an approved payout. The recipient code is
// stored before the transfer is attempted, so a later attempt skips phase 1.
// Any failure leaves the payout failed with its retry count bumped, and the
// error is still returned.
func (o *TransferOrchestrator) Execute(ctx context.Context, payoutID string) (*model.Payout, error) {
	// The state machine must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := o.Logger.With(zap.String("payout_id", payoutID))

	p, err := o.PayoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PayoutApproved {
		return nil, appErrors.FailedPrecondition("payout %s is %s, expected approved", p.ID, p.Status)
	}
	log = log.With(zap.String("campaign_id", p.CampaignID))

	recipient := p.RecipientCode
	if recipient == "" {
		bankCode, ok := o.Networks.BankCode(p.MomoNetwork)
		if !ok {
			return nil, o.fail(ctx, log, p, appErrors.InvalidArgument("unsupported mobile money network: %s", p.MomoNetwork))
		}
		recipient, err = o.Gateway.CreateRecipient(ctx, gateway.RecipientRequest{
			Name:          p.MomoNumber,
			AccountNumber: p.MomoNumber,
			BankCode:      bankCode,
		})
		if err != nil {
			return nil, o.fail(ctx, log, p, err)
		}
		if err := o.PayoutRepo.SetRecipientCode(ctx, p.ID, recipient); err != nil {
			return nil, o.fail(ctx, log, p, err)
		}
		log.Info("transfer recipient registered", zap.String("recipient_code", recipient))
	}

	reference := fmt.Sprintf("payout_%s_%d", p.ID, o.now().UnixMilli())
	if err := o.PayoutRepo.SetTransferReference(ctx, p.ID, reference); err != nil {
		return nil, o.fail(ctx, log, p, err)
	}

	transfer, err := o.Gateway.InitiateTransfer(ctx, gateway.TransferRequest{
		Amount:    p.Amount,
		Recipient: recipient,
		Reason:    "Payout for campaign " + p.CampaignID,
		Reference: reference,
	})
	if err != nil {
		return nil, o.fail(ctx, log, p, err)
	}

	updated, err := o.PayoutRepo.Transition(ctx, p.ID, repository.PayoutTransition{
		From:         []model.PayoutStatus{model.PayoutApproved},
		To:           model.PayoutProcessing,
		TransferCode: transfer.TransferCode,
	})
	if err != nil {
		// The gateway accepted the transfer, so the payout must not be marked
		// failed here. The webhook matches it by reference.
		if errors.Is(err, appErrors.ErrStaleTransition) {
			log.Info("payout settled before processing was recorded", zap.String("reference", reference))
			return o.PayoutRepo.GetByID(ctx, p.ID)
		}
		log.Error("record transfer initiation", zap.String("reference", reference), zap.Error(err))
		return nil, appErrors.Internal(err, "transfer initiated but not recorded for payout %s", p.ID)
	}
	log.Info("transfer initiated",
		zap.String("transfer_code", transfer.TransferCode),
		zap.String("reference", reference),
	)
	return updated, nil
}

// fail records cause on the payout and returns the error for the caller.
func (o *TransferOrchestrator) fail(ctx context.Context, log *zap.Logger, p *model.Payout, cause error) error {
	reason := failureReason(cause)
	if _, err := o.PayoutRepo.Transition(ctx, p.ID, repository.PayoutTransition{
		From:           []model.PayoutStatus{model.PayoutApproved},
		To:             model.PayoutFailed,
		IncrementRetry: true,
		FailureReason:  &reason,
	}); err != nil {
		log.Error("record payout failure", zap.String("reason", reason), zap.Error(err))
	} else {
		log.Warn("payout transfer failed", zap.String("reason", reason))
	}

	if appErrors.Is(cause, codes.InvalidArgument) {
		return cause
	}
	return appErrors.Internal(cause, "transfer failed: %s", reason)
}

func failureReason(err error) string {
	if msg := appErrors.MessageOf(err); msg != "internal error" {
		return msg
	}
	return err.Error()
}

func (o *TransferOrchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
