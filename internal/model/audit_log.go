// internal/model/audit_log.go
package model

import "time"

type AuditAction string

const (
	AuditApprovePayout AuditAction = "approve_payout"
	AuditRejectPayout  AuditAction = "reject_payout"
	AuditHoldPayout    AuditAction = "hold_payout"
	AuditRetryPayout   AuditAction = "retry_payout"
)

type AuditLogEntry struct {
	ID         string      `db:"id" json:"id"`
	Action     AuditAction `db:"action" json:"action"`
	ActorID    string      `db:"actor_id" json:"actor_id"`
	CampaignID string      `db:"campaign_id" json:"campaign_id,omitempty"`
	PayoutID   string      `db:"payout_id" json:"payout_id,omitempty"`
	Reason     string      `db:"reason" json:"reason,omitempty"`
	Notes      string      `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
