// internal/model/campaign.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignPending   CampaignStatus = "pending"
	CampaignActive    CampaignStatus = "active"
	CampaignRejected  CampaignStatus = "rejected"
	CampaignFrozen    CampaignStatus = "frozen"
	CampaignCompleted CampaignStatus = "completed"
	CampaignExpired   CampaignStatus = "expired"
)

type Campaign struct {
	ID                 string          `db:"id" json:"id"`
	OwnerID            string          `db:"owner_id" json:"owner_id"`
	CreatorName        string          `db:"creator_name" json:"creator_name"`
	Title              string          `db:"title" json:"title"`
	TargetAmount       decimal.Decimal `db:"target_amount" json:"target_amount"`
	RaisedAmount       decimal.Decimal `db:"raised_amount" json:"raised_amount"`
	DonationCount      int             `db:"donation_count" json:"donation_count"`
	TotalFeesCollected decimal.Decimal `db:"total_fees_collected" json:"total_fees_collected"`
	Status             CampaignStatus  `db:"status" json:"status"`
	PayoutStatus       string          `db:"payout_status" json:"payout_status,omitempty"`
	PayoutID           string          `db:"payout_id" json:"payout_id,omitempty"`
	EndDate            *time.Time      `db:"end_date" json:"end_date,omitempty"`
	Verification       Verification    `json:"verification"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// Verification is stored flattened on the campaigns table with a verification_ prefix.
type Verification struct {
	PhoneNumber    string   `db:"verification_phone_number" json:"phone_number,omitempty"`
	PhoneVerified  bool     `db:"verification_phone_verified" json:"phone_verified"`
	FullName       string   `db:"verification_full_name" json:"full_name,omitempty"`
	IDType         string   `db:"verification_id_type" json:"id_type,omitempty"`
	IDImageURL     string   `db:"verification_id_image_url" json:"id_image_url,omitempty"`
	ProofDocuments []string `db:"verification_proof_documents" json:"proof_documents"`
	MomoNetwork    string   `db:"verification_momo_network" json:"momo_network,omitempty"`
	MomoNumber     string   `db:"verification_momo_number" json:"momo_number,omitempty"`
	RedFlags       []string `db:"verification_red_flags" json:"red_flags"`
	RequestedInfo  string   `db:"verification_requested_info" json:"requested_info,omitempty"`
}

// HasEnded reports whether the campaign end date is strictly before now.
func (c *Campaign) HasEnded(now time.Time) bool {
	return c.EndDate != nil && c.EndDate.Before(now)
}

// ReachedGoal reports whether raised funds cover the target.
func (c *Campaign) ReachedGoal() bool {
	return c.RaisedAmount.GreaterThanOrEqual(c.TargetAmount)
}
