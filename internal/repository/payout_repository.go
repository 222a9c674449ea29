package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/model"
)

// PayoutTransition describes a compare-and-set status change. The update only
// applies when the stored status is one of From.
type PayoutTransition struct {
	From []model.PayoutStatus
	To   model.PayoutStatus
	// MaxRetryCount, when positive, additionally requires retry_count < MaxRetryCount.
	MaxRetryCount  int
	IncrementRetry bool
	// FailureReason overwrites the stored reason when non-nil; point at "" to clear it.
	FailureReason *string
	TransferCode  string
	AdminNotes    *string
	ApprovedBy    string
	// ClearTransferReference drops the reference of a previous attempt.
	ClearTransferReference bool
}

// BuildPayoutFunc decides, under the campaign row lock, which payout to insert.
// hasActive reports whether the campaign already has an active payout.
type BuildPayoutFunc func(c *model.Campaign, hasActive bool) (*model.Payout, error)

type PayoutRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Payout, error)
	FindByTransferCode(ctx context.Context, code string) (*model.Payout, error)
	FindByTransferReference(ctx context.Context, reference string) (*model.Payout, error)
	CountCompletedByCreator(ctx context.Context, creatorID string) (int, error)
	CreateForCampaign(ctx context.Context, campaignID string, build BuildPayoutFunc) (*model.Payout, error)
	SetRecipientCode(ctx context.Context, id, code string) error
	SetTransferReference(ctx context.Context, id, reference string) error
	Transition(ctx context.Context, id string, t PayoutTransition) (*model.Payout, error)
	ClaimStaleApproved(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type PayoutRepository struct {
	DB *sql.DB
}

const payoutColumns = `
	id, campaign_id, creator_id, amount, platform_fee_deducted, momo_network, momo_number,
	status, gateway_recipient_code, gateway_transfer_code, transfer_reference, retry_count,
	failure_reason, admin_notes, approved_by, requested_at, approved_at, processing_at,
	completed_at, failed_at, held_at, rejected_at, updated_at`

func scanPayout(row rowScanner) (*model.Payout, error) {
	var p model.Payout
	err := row.Scan(
		&p.ID, &p.CampaignID, &p.CreatorID, &p.Amount, &p.PlatformFeeDeducted, &p.MomoNetwork, &p.MomoNumber,
		&p.Status, &p.RecipientCode, &p.TransferCode, &p.TransferReference, &p.RetryCount,
		&p.FailureReason, &p.AdminNotes, &p.ApprovedBy, &p.RequestedAt, &p.ApprovedAt, &p.ProcessingAt,
		&p.CompletedAt, &p.FailedAt, &p.HeldAt, &p.RejectedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func statusArray(statuses []model.PayoutStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func (r *PayoutRepository) GetByID(ctx context.Context, id string) (*model.Payout, error) {
	p, err := scanPayout(r.DB.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewPayoutNotFound(id)
		}
		return nil, err
	}
	return p, nil
}

// FindByTransferCode returns nil without error when no payout carries code.
func (r *PayoutRepository) FindByTransferCode(ctx context.Context, code string) (*model.Payout, error) {
	return r.findOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE gateway_transfer_code=$1 AND $1 <> ''`, code)
}

// FindByTransferReference returns nil without error when no payout carries reference.
func (r *PayoutRepository) FindByTransferReference(ctx context.Context, reference string) (*model.Payout, error) {
	return r.findOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE transfer_reference=$1 AND $1 <> '' LIMIT 1`, reference)
}

func (r *PayoutRepository) findOne(ctx context.Context, query string, arg string) (*model.Payout, error) {
	p, err := scanPayout(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *PayoutRepository) CountCompletedByCreator(ctx context.Context, creatorID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payouts WHERE creator_id=$1 AND status=$2`,
		creatorID, model.PayoutCompleted,
	).Scan(&n)
	return n, err
}

// CreateForCampaign locks the campaign row, checks for an active payout, and
// inserts whatever build returns together with the campaign mirror fields.
// The partial unique index on payouts backs the check up.
func (r *PayoutRepository) CreateForCampaign(ctx context.Context, campaignID string, build BuildPayoutFunc) (*model.Payout, error) {
	var created *model.Payout
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		c, err := scanCampaign(tx.QueryRowContext(ctx,
			`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1 FOR UPDATE`, campaignID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.NewCampaignNotFound(campaignID)
			}
			return err
		}

		var hasActive bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM payouts WHERE campaign_id=$1 AND status = ANY($2::text[]))`,
			campaignID, statusArray(model.ActivePayoutStatuses),
		).Scan(&hasActive); err != nil {
			return err
		}

		p, err := build(c, hasActive)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		p.RequestedAt, p.UpdatedAt = now, now
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payouts (id, campaign_id, creator_id, amount, platform_fee_deducted, momo_network,
				momo_number, status, retry_count, requested_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)`,
			p.ID, p.CampaignID, p.CreatorID, p.Amount, p.PlatformFeeDeducted, p.MomoNetwork,
			p.MomoNumber, p.Status, now,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE campaigns SET payout_status=$1, payout_id=$2, updated_at=NOW() WHERE id=$3`,
			p.Status, p.ID, campaignID,
		); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.AlreadyExists("payout already requested for campaign %s", campaignID)
		}
		return nil, err
	}
	return created, nil
}

func (r *PayoutRepository) SetRecipientCode(ctx context.Context, id, code string) error {
	return r.setField(ctx, `UPDATE payouts SET gateway_recipient_code=$1, updated_at=NOW() WHERE id=$2`, code, id)
}

func (r *PayoutRepository) SetTransferReference(ctx context.Context, id, reference string) error {
	return r.setField(ctx, `UPDATE payouts SET transfer_reference=$1, updated_at=NOW() WHERE id=$2`, reference, id)
}

func (r *PayoutRepository) setField(ctx context.Context, query, value, id string) error {
	res, err := r.DB.ExecContext(ctx, query, value, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewPayoutNotFound(id)
	}
	return nil
}

// Transition applies t atomically and, in the same transaction, mirrors the new
// status onto the campaign when the payout is the campaign's current one or
// becomes active. It returns ErrStaleTransition when the payout exists
// but is not in one of t.From.
func (r *PayoutRepository) Transition(ctx context.Context, id string, t PayoutTransition) (*model.Payout, error) {
	increment := 0
	if t.IncrementRetry {
		increment = 1
	}

	var updated *model.Payout
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		p, err := scanPayout(tx.QueryRowContext(ctx, `
			UPDATE payouts SET
				status = $2::text,
				retry_count = retry_count + $3::int,
				failure_reason = COALESCE($4::text, failure_reason),
				gateway_transfer_code = CASE WHEN $5::text = '' THEN gateway_transfer_code ELSE $5::text END,
				transfer_reference = CASE WHEN $10::bool THEN '' ELSE transfer_reference END,
				admin_notes = COALESCE($6::text, admin_notes),
				approved_by = CASE WHEN $7::text = '' THEN approved_by ELSE $7::text END,
				approved_at = CASE WHEN $7::text = '' THEN approved_at ELSE NOW() END,
				processing_at = CASE WHEN $2::text = 'processing' THEN NOW() ELSE processing_at END,
				completed_at = CASE WHEN $2::text = 'completed' THEN NOW() ELSE completed_at END,
				failed_at = CASE WHEN $2::text = 'failed' THEN NOW() ELSE failed_at END,
				held_at = CASE WHEN $2::text = 'on_hold' THEN NOW() ELSE held_at END,
				rejected_at = CASE WHEN $2::text = 'rejected' THEN NOW() ELSE rejected_at END,
				updated_at = NOW()
			WHERE id = $1 AND status = ANY($8::text[]) AND ($9::int = 0 OR retry_count < $9::int)
			RETURNING `+payoutColumns,
			id, string(t.To), increment, t.FailureReason, t.TransferCode, t.AdminNotes, t.ApprovedBy,
			statusArray(t.From), t.MaxRetryCount, t.ClearTransferReference,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				var exists bool
				if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE id=$1)`, id).Scan(&exists); err != nil {
					return err
				}
				if !exists {
					return appErrors.NewPayoutNotFound(id)
				}
				return appErrors.ErrStaleTransition
			}
			return err
		}

		// A superseded payout must not overwrite the mirror of the campaign's
		// current one.
		if _, err := tx.ExecContext(ctx, `
			UPDATE campaigns SET payout_status=$1, payout_id=$2, updated_at=NOW()
			WHERE id=$3 AND (payout_id=$2 OR payout_id='' OR $4::bool)`,
			p.Status, p.ID, p.CampaignID, p.Status.IsActive(),
		); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.AlreadyExists("another active payout exists for this campaign")
		}
		return nil, err
	}
	return updated, nil
}

// ClaimStaleApproved bumps updated_at on up to limit payouts that have sat in
// approved since before cutoff without a transfer reference and returns their
// ids. A payout with a reference may already have a transfer in flight and is
// left for the webhook to settle. Concurrent claimers skip locked rows.
func (r *PayoutRepository) ClaimStaleApproved(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE payouts SET updated_at = NOW()
		WHERE id IN (
			SELECT id FROM payouts
			WHERE status = $1 AND updated_at < $2 AND transfer_reference = ''
			ORDER BY updated_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`,
		model.PayoutApproved, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ PayoutRepositoryInterface = (*PayoutRepository)(nil)
