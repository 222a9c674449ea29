package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/gateway"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/queue"
	"github.com/unclebandit/payout-settlement/internal/repository"
)

const (
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
	EventChargeSuccess    = "charge.success"

	defaultTransferFailure = "Transfer failed"
)

// WebhookGuard remembers deliveries that were already applied. It only saves
// work; every handler is idempotent without it.
type WebhookGuard interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}

type WebhookReconciler struct {
	Secret       string
	PayoutRepo   repository.PayoutRepositoryInterface
	DonationRepo repository.DonationRepositoryInterface
	Gateway      gateway.Gateway
	Queue        queue.Queue
	Guard        WebhookGuard
	Logger       *zap.Logger
}

type webhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type transferEventData struct {
	TransferCode    string `json:"transfer_code"`
	Reference       string `json:"reference"`
	Message         string `json:"message"`
	GatewayResponse string `json:"gateway_response"`
}

type chargeEventData struct {
	Reference string           `json:"reference"`
	Amount    int64            `json:"amount"`
	Channel   string           `json:"channel"`
	Metadata  gateway.Metadata `json:"metadata"`
}

// Handle verifies and applies one gateway delivery. An Unauthenticated error
// means nothing was touched; an Internal error asks the gateway to redeliver.
func (r *WebhookReconciler) Handle(ctx context.Context, body []byte, signature string) error {
	if !gateway.VerifySignature(r.Secret, body, signature) {
		r.Logger.Warn("webhook signature rejected")
		return appErrors.Unauthenticated("invalid webhook signature")
	}

	if r.Guard != nil {
		seen, err := r.Guard.Seen(ctx, signature)
		if err != nil {
			r.Logger.Warn("webhook guard lookup", zap.Error(err))
		} else if seen {
			r.Logger.Debug("webhook delivery already processed")
			return nil
		}
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return appErrors.InvalidArgument("malformed webhook body")
	}
	log := r.Logger.With(zap.String("event", evt.Event))

	var err error
	switch evt.Event {
	case EventTransferSuccess:
		err = r.transferSucceeded(ctx, log, evt.Data)
	case EventTransferFailed, EventTransferReversed:
		err = r.transferFailed(ctx, log, evt.Data)
	case EventChargeSuccess:
		err = r.chargeSucceeded(ctx, log, evt.Data)
	default:
		log.Info("ignoring webhook event")
	}
	if err != nil {
		return err
	}

	if r.Guard != nil {
		if err := r.Guard.MarkProcessed(ctx, signature); err != nil {
			log.Warn("webhook guard mark", zap.Error(err))
		}
	}
	return nil
}

func (r *WebhookReconciler) findPayout(ctx context.Context, d transferEventData) (*model.Payout, error) {
	if d.TransferCode != "" {
		p, err := r.PayoutRepo.FindByTransferCode(ctx, d.TransferCode)
		if err != nil || p != nil {
			return p, err
		}
	}
	if d.Reference != "" {
		return r.PayoutRepo.FindByTransferReference(ctx, d.Reference)
	}
	return nil, nil
}

func (r *WebhookReconciler) transferSucceeded(ctx context.Context, log *zap.Logger, raw json.RawMessage) error {
	var d transferEventData
	if err := json.Unmarshal(raw, &d); err != nil {
		return appErrors.InvalidArgument("malformed transfer event")
	}
	log = log.With(zap.String("transfer_code", d.TransferCode), zap.String("reference", d.Reference))

	p, err := r.findPayout(ctx, d)
	if err != nil {
		return appErrors.Internal(err, "lookup payout")
	}
	if p == nil {
		log.Warn("no payout matches transfer")
		return nil
	}
	log = log.With(zap.String("payout_id", p.ID))
	if p.Status == model.PayoutCompleted {
		return nil
	}

	_, err = r.PayoutRepo.Transition(ctx, p.ID, repository.PayoutTransition{
		From: []model.PayoutStatus{
			model.PayoutApproved, model.PayoutProcessing, model.PayoutFailed,
			model.PayoutPendingReview, model.PayoutOnHold, model.PayoutRejected,
		},
		To:           model.PayoutCompleted,
		TransferCode: d.TransferCode,
	})
	switch {
	case err == nil:
		log.Info("payout completed")
		return nil
	case errors.Is(err, appErrors.ErrStaleTransition):
		// Only a concurrent completion can make the update miss.
		return nil
	case appErrors.Is(err, codes.AlreadyExists):
		log.Error("transfer succeeded for a payout superseded by another active payout", zap.Error(err))
		return nil
	default:
		return appErrors.Internal(err, "complete payout %s", p.ID)
	}
}

func (r *WebhookReconciler) transferFailed(ctx context.Context, log *zap.Logger, raw json.RawMessage) error {
	var d transferEventData
	if err := json.Unmarshal(raw, &d); err != nil {
		return appErrors.InvalidArgument("malformed transfer event")
	}
	log = log.With(zap.String("transfer_code", d.TransferCode), zap.String("reference", d.Reference))

	p, err := r.findPayout(ctx, d)
	if err != nil {
		return appErrors.Internal(err, "lookup payout")
	}
	if p == nil {
		log.Warn("no payout matches transfer")
		return nil
	}
	log = log.With(zap.String("payout_id", p.ID))
	if p.Status != model.PayoutApproved && p.Status != model.PayoutProcessing {
		log.Info("transfer failure ignored", zap.String("status", string(p.Status)))
		return nil
	}

	reason := firstNonEmpty(d.Message, d.GatewayResponse, defaultTransferFailure)
	_, err = r.PayoutRepo.Transition(ctx, p.ID, repository.PayoutTransition{
		From:           []model.PayoutStatus{model.PayoutApproved, model.PayoutProcessing},
		To:             model.PayoutFailed,
		IncrementRetry: true,
		FailureReason:  &reason,
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrStaleTransition) {
			return nil
		}
		return appErrors.Internal(err, "fail payout %s", p.ID)
	}
	log.Warn("payout transfer failed", zap.String("reason", reason))
	return nil
}

func (r *WebhookReconciler) chargeSucceeded(ctx context.Context, log *zap.Logger, raw json.RawMessage) error {
	var d chargeEventData
	if err := json.Unmarshal(raw, &d); err != nil {
		return appErrors.InvalidArgument("malformed charge event")
	}
	if d.Reference == "" {
		log.Warn("charge event without reference")
		return nil
	}
	log = log.With(zap.String("reference", d.Reference))

	tx, err := r.Gateway.VerifyTransaction(ctx, d.Reference)
	if err != nil {
		return appErrors.Internal(err, "verify transaction %s", d.Reference)
	}
	if !tx.Successful() {
		log.Warn("charge not confirmed by gateway", zap.String("status", tx.Status))
		return nil
	}

	donation, ok := donationFromCharge(d, tx)
	if !ok {
		log.Warn("charge metadata lacks campaign or amount")
		return nil
	}
	log = log.With(zap.String("campaign_id", donation.CampaignID))

	created, err := r.DonationRepo.Record(ctx, donation)
	if err != nil {
		if appErrors.Is(err, codes.NotFound) {
			log.Warn("charge for unknown campaign")
			return nil
		}
		return appErrors.Internal(err, "record donation %s", d.Reference)
	}
	if !created {
		log.Debug("donation already recorded")
		return nil
	}
	log.Info("donation recorded", zap.String("amount", donation.Amount.String()))

	if r.Queue != nil {
		if err := queue.PublishJSON(r.Queue, queue.TopicCampaignWrites, queue.CampaignWrite{CampaignID: donation.CampaignID}); err != nil {
			log.Warn("publish campaign write", zap.Error(err))
		}
	}
	return nil
}

// donationFromCharge reads the donation from the callback metadata, falling
// back to the verified transaction for anything the callback left out.
func donationFromCharge(d chargeEventData, tx *gateway.Transaction) (*model.Donation, bool) {
	meta := d.Metadata
	if len(meta) == 0 {
		meta = tx.Metadata
	}
	campaignID := meta.String("campaign_id")
	if campaignID == "" {
		return nil, false
	}

	minor := d.Amount
	if minor == 0 {
		minor = tx.Amount
	}
	totalPaid := decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
	amount := parseAmount(meta.String("donation_amount"))
	if !amount.IsPositive() {
		amount = totalPaid
	}
	if !amount.IsPositive() {
		return nil, false
	}

	anonymous := strings.EqualFold(meta.String("is_anonymous"), "true")
	donorName := meta.String("donor_name")
	donorContact := meta.String("donor_contact")
	if anonymous || donorName == "" {
		donorName = "Anonymous"
	}
	if anonymous {
		donorContact = ""
	}

	return &model.Donation{
		CampaignID:    campaignID,
		Reference:     d.Reference,
		DonorName:     donorName,
		DonorContact:  donorContact,
		Amount:        amount,
		TotalPaid:     totalPaid,
		PlatformFee:   parseAmount(meta.String("platform_fee")),
		GatewayFee:    parseAmount(meta.String("paystack_fee")),
		PaymentMethod: firstNonEmpty(d.Channel, tx.Channel),
		Status:        "successful",
		IsAnonymous:   anonymous,
		Message:       meta.String("message"),
	}, true
}

func parseAmount(s string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
