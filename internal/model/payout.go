// internal/model/payout.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPendingReview PayoutStatus = "pending_review"
	PayoutApproved      PayoutStatus = "approved"
	PayoutProcessing    PayoutStatus = "processing"
	PayoutCompleted     PayoutStatus = "completed"
	PayoutFailed        PayoutStatus = "failed"
	PayoutOnHold        PayoutStatus = "on_hold"
	PayoutRejected      PayoutStatus = "rejected"
)

// ActivePayoutStatuses block a new payout request for the same campaign.
var ActivePayoutStatuses = []PayoutStatus{
	PayoutPendingReview,
	PayoutApproved,
	PayoutProcessing,
	PayoutCompleted,
}

// IsActive reports whether s counts against the one-payout-per-campaign rule.
func (s PayoutStatus) IsActive() bool {
	for _, a := range ActivePayoutStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type Payout struct {
	ID                  string          `db:"id" json:"id"`
	CampaignID          string          `db:"campaign_id" json:"campaign_id"`
	CreatorID           string          `db:"creator_id" json:"creator_id"`
	Amount              decimal.Decimal `db:"amount" json:"amount"`
	PlatformFeeDeducted decimal.Decimal `db:"platform_fee_deducted" json:"platform_fee_deducted"`
	MomoNetwork         string          `db:"momo_network" json:"momo_network"`
	MomoNumber          string          `db:"momo_number" json:"momo_number"`
	Status              PayoutStatus    `db:"status" json:"status"`
	RecipientCode       string          `db:"gateway_recipient_code" json:"gateway_recipient_code,omitempty"`
	TransferCode        string          `db:"gateway_transfer_code" json:"gateway_transfer_code,omitempty"`
	TransferReference   string          `db:"transfer_reference" json:"transfer_reference,omitempty"`
	RetryCount          int             `db:"retry_count" json:"retry_count"`
	FailureReason       string          `db:"failure_reason" json:"failure_reason,omitempty"`
	AdminNotes          string          `db:"admin_notes" json:"admin_notes,omitempty"`
	ApprovedBy          string          `db:"approved_by" json:"approved_by,omitempty"`
	RequestedAt         time.Time       `db:"requested_at" json:"requested_at"`
	ApprovedAt          *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	ProcessingAt        *time.Time      `db:"processing_at" json:"processing_at,omitempty"`
	CompletedAt         *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt            *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
	HeldAt              *time.Time      `db:"held_at" json:"held_at,omitempty"`
	RejectedAt          *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}
