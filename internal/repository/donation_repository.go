package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/model"
)

type DonationRepositoryInterface interface {
	Record(ctx context.Context, d *model.Donation) (bool, error)
}

type DonationRepository struct {
	DB *sql.DB
}

// Record inserts the donation and bumps the campaign totals in one transaction.
// A reference that was already recorded is a no-op and returns false.
func (r *DonationRepository) Record(ctx context.Context, d *model.Donation) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = "successful"
	}

	created := false
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO donations (id, campaign_id, reference, donor_name, donor_contact, amount,
				total_paid, platform_fee, gateway_fee, payment_method, status, is_anonymous, message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (reference) DO NOTHING`,
			d.ID, d.CampaignID, d.Reference, d.DonorName, d.DonorContact, d.Amount,
			d.TotalPaid, d.PlatformFee, d.GatewayFee, d.PaymentMethod, d.Status, d.IsAnonymous, d.Message, d.CreatedAt,
		)
		if err != nil {
			if appErrors.IsForeignKeyViolation(err) {
				return appErrors.NewCampaignNotFound(d.CampaignID)
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE campaigns
			SET raised_amount = raised_amount + $1, donation_count = donation_count + 1, updated_at = NOW()
			WHERE id = $2`,
			d.Amount, d.CampaignID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return appErrors.NewCampaignNotFound(d.CampaignID)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

var _ DonationRepositoryInterface = (*DonationRepository)(nil)
