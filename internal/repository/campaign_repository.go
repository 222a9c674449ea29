package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	CountByPhoneNumber(ctx context.Context, phone string) (int, error)
	CountByProofDocument(ctx context.Context, url string) (int, error)
	SetRedFlags(ctx context.Context, id string, flags []string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `
	id, owner_id, creator_name, title, target_amount, raised_amount, donation_count,
	total_fees_collected, status, payout_status, payout_id, end_date,
	verification_phone_number, verification_phone_verified, verification_full_name,
	verification_id_type, verification_id_image_url, verification_proof_documents,
	verification_momo_network, verification_momo_number, verification_red_flags,
	verification_requested_info, created_at, updated_at`

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	v := &c.Verification
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.CreatorName, &c.Title, &c.TargetAmount, &c.RaisedAmount, &c.DonationCount,
		&c.TotalFeesCollected, &c.Status, &c.PayoutStatus, &c.PayoutID, &c.EndDate,
		&v.PhoneNumber, &v.PhoneVerified, &v.FullName,
		&v.IDType, &v.IDImageURL, pq.Array(&v.ProofDocuments),
		&v.MomoNetwork, &v.MomoNumber, pq.Array(&v.RedFlags),
		&v.RequestedInfo, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// CountByPhoneNumber counts campaigns, including the caller's, verified with phone.
func (r *CampaignRepository) CountByPhoneNumber(ctx context.Context, phone string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE verification_phone_number=$1`, phone,
	).Scan(&n)
	return n, err
}

func (r *CampaignRepository) CountByProofDocument(ctx context.Context, url string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE $1 = ANY(verification_proof_documents)`, url,
	).Scan(&n)
	return n, err
}

func (r *CampaignRepository) SetRedFlags(ctx context.Context, id string, flags []string) error {
	if flags == nil {
		flags = []string{}
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET verification_red_flags=$1, updated_at=NOW() WHERE id=$2`,
		pq.Array(flags), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
