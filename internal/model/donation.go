// internal/model/donation.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Donation is written once per gateway payment reference and never updated.
type Donation struct {
	ID            string          `db:"id" json:"id"`
	CampaignID    string          `db:"campaign_id" json:"campaign_id"`
	Reference     string          `db:"reference" json:"reference"`
	DonorName     string          `db:"donor_name" json:"donor_name"`
	DonorContact  string          `db:"donor_contact" json:"donor_contact,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	TotalPaid     decimal.Decimal `db:"total_paid" json:"total_paid"`
	PlatformFee   decimal.Decimal `db:"platform_fee" json:"platform_fee"`
	GatewayFee    decimal.Decimal `db:"gateway_fee" json:"gateway_fee"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Status        string          `db:"status" json:"status"`
	IsAnonymous   bool            `db:"is_anonymous" json:"is_anonymous"`
	Message       string          `db:"message" json:"message,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
