package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/repository"
)

const (
	FlagNameMismatch      = "Name mismatch between ID and account"
	FlagProofReused       = "Proof image used in multiple campaigns"
	FlagPhoneNotVerified  = "Phone number not verified"
	FlagIDMissing         = "ID document not uploaded"
	FlagProofMissing      = "No proof documents uploaded"
	FlagMomoNotConfigured = "Mobile Money not configured"
)

// RedFlagDetector derives the verification red flags of a campaign from its
// current state and the rest of the campaign table.
type RedFlagDetector struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Logger       *zap.Logger
}

// Recompute replaces the stored flag set. Failures are logged only.
func (d *RedFlagDetector) Recompute(ctx context.Context, campaignID string) {
	log := d.Logger.With(zap.String("campaign_id", campaignID))

	c, err := d.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		log.Error("red flag recompute: load campaign", zap.Error(err))
		return
	}

	flags, err := d.Detect(ctx, c)
	if err != nil {
		log.Error("red flag recompute: detect", zap.Error(err))
		return
	}
	if sameFlags(flags, c.Verification.RedFlags) {
		return
	}
	if err := d.CampaignRepo.SetRedFlags(ctx, campaignID, flags); err != nil {
		log.Error("red flag recompute: store", zap.Error(err))
		return
	}
	log.Info("red flags updated", zap.Strings("flags", flags))
}

// Detect returns the flags for c in their fixed order.
func (d *RedFlagDetector) Detect(ctx context.Context, c *model.Campaign) ([]string, error) {
	v := c.Verification
	flags := []string{}

	if v.FullName != "" && v.IDType != "" && namesMismatch(v.FullName, c.CreatorName) {
		flags = append(flags, FlagNameMismatch)
	}

	if v.PhoneNumber != "" {
		n, err := d.CampaignRepo.CountByPhoneNumber(ctx, v.PhoneNumber)
		if err != nil {
			return nil, fmt.Errorf("count campaigns by phone: %w", err)
		}
		if n > 1 {
			flags = append(flags, fmt.Sprintf("%d campaigns from same phone number", n))
		}
	}

	for _, doc := range v.ProofDocuments {
		n, err := d.CampaignRepo.CountByProofDocument(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("count campaigns by proof document: %w", err)
		}
		if n > 1 {
			flags = append(flags, FlagProofReused)
			break
		}
	}

	if c.Status == model.CampaignPending {
		if !v.PhoneVerified {
			flags = append(flags, FlagPhoneNotVerified)
		}
		if v.IDImageURL == "" {
			flags = append(flags, FlagIDMissing)
		}
		if len(v.ProofDocuments) == 0 {
			flags = append(flags, FlagProofMissing)
		}
		if v.MomoNumber == "" {
			flags = append(flags, FlagMomoNotConfigured)
		}
	}
	return flags, nil
}

// namesMismatch reports whether the ID name neither equals nor contains the
// account name.
func namesMismatch(idName, accountName string) bool {
	a := strings.ToLower(strings.TrimSpace(idName))
	b := strings.ToLower(strings.TrimSpace(accountName))
	return a != b && !strings.Contains(a, b)
}

func sameFlags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
