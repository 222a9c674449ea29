package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/gateway"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/repository"
	"github.com/unclebandit/payout-settlement/internal/service"
)

// ledger is an in-memory stand-in for the Postgres tables the services use.
type ledger struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	payouts   map[string]*model.Payout
	donations map[string]*model.Donation
	users     map[string]*model.User
	audit     []model.AuditLogEntry
	auditErr  error
	writes    int
}

func newLedger() *ledger {
	return &ledger{
		campaigns: map[string]*model.Campaign{},
		payouts:   map[string]*model.Payout{},
		donations: map[string]*model.Donation{},
		users:     map[string]*model.User{},
	}
}

func (l *ledger) campaign(id string) model.Campaign {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.campaigns[id]
}

func (l *ledger) payout(id string) model.Payout {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.payouts[id]
}

func (l *ledger) addPayout(p *model.Payout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payouts[p.ID] = p
	if c, ok := l.campaigns[p.CampaignID]; ok {
		c.PayoutStatus = string(p.Status)
		c.PayoutID = p.ID
	}
}

// --- campaigns ---

type fakeCampaignRepo struct{ *ledger }

func (r fakeCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	cp.Verification.RedFlags = append([]string(nil), c.Verification.RedFlags...)
	return &cp, nil
}

func (r fakeCampaignRepo) CountByPhoneNumber(ctx context.Context, phone string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.campaigns {
		if c.Verification.PhoneNumber == phone {
			n++
		}
	}
	return n, nil
}

func (r fakeCampaignRepo) CountByProofDocument(ctx context.Context, url string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.campaigns {
		for _, d := range c.Verification.ProofDocuments {
			if d == url {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r fakeCampaignRepo) SetRedFlags(ctx context.Context, id string, flags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Verification.RedFlags = append([]string{}, flags...)
	r.writes++
	return nil
}

// --- users ---

type fakeUserRepo struct{ *ledger }

func (r fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// --- audit ---

type fakeAuditRepo struct{ *ledger }

func (r fakeAuditRepo) Append(ctx context.Context, e *model.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.auditErr != nil {
		return r.auditErr
	}
	r.audit = append(r.audit, *e)
	return nil
}

// --- donations ---

type fakeDonationRepo struct{ *ledger }

func (r fakeDonationRepo) Record(ctx context.Context, d *model.Donation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.donations[d.Reference]; dup {
		return false, nil
	}
	c, ok := r.campaigns[d.CampaignID]
	if !ok {
		return false, appErrors.NewCampaignNotFound(d.CampaignID)
	}
	cp := *d
	r.donations[d.Reference] = &cp
	c.RaisedAmount = c.RaisedAmount.Add(d.Amount)
	c.DonationCount++
	return true, nil
}

// --- payouts ---

type fakePayoutRepo struct {
	*ledger
	transitionErr error
}

func (r *fakePayoutRepo) GetByID(ctx context.Context, id string) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, appErrors.NewPayoutNotFound(id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakePayoutRepo) FindByTransferCode(ctx context.Context, code string) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payouts {
		if code != "" && p.TransferCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePayoutRepo) FindByTransferReference(ctx context.Context, ref string) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payouts {
		if ref != "" && p.TransferReference == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePayoutRepo) CountCompletedByCreator(ctx context.Context, creatorID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.payouts {
		if p.CreatorID == creatorID && p.Status == model.PayoutCompleted {
			n++
		}
	}
	return n, nil
}

// hasActiveLocked mirrors the partial unique index.
func (r *fakePayoutRepo) hasActiveLocked(campaignID, except string) bool {
	for _, p := range r.payouts {
		if p.CampaignID == campaignID && p.ID != except && p.Status.IsActive() {
			return true
		}
	}
	return false
}

func (r *fakePayoutRepo) CreateForCampaign(ctx context.Context, campaignID string, build repository.BuildPayoutFunc) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	cp := *c
	p, err := build(&cp, r.hasActiveLocked(campaignID, ""))
	if err != nil {
		return nil, err
	}
	if p.Status.IsActive() && r.hasActiveLocked(campaignID, "") {
		return nil, appErrors.AlreadyExists("payout already requested for campaign %s", campaignID)
	}
	now := time.Now()
	p.RequestedAt, p.UpdatedAt = now, now
	stored := *p
	r.payouts[p.ID] = &stored
	c.PayoutStatus = string(p.Status)
	c.PayoutID = p.ID
	return p, nil
}

func (r *fakePayoutRepo) SetRecipientCode(ctx context.Context, id, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return appErrors.NewPayoutNotFound(id)
	}
	p.RecipientCode = code
	return nil
}

func (r *fakePayoutRepo) SetTransferReference(ctx context.Context, id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return appErrors.NewPayoutNotFound(id)
	}
	p.TransferReference = ref
	return nil
}

func (r *fakePayoutRepo) Transition(ctx context.Context, id string, t repository.PayoutTransition) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transitionErr != nil {
		return nil, r.transitionErr
	}
	p, ok := r.payouts[id]
	if !ok {
		return nil, appErrors.NewPayoutNotFound(id)
	}
	matched := false
	for _, s := range t.From {
		if p.Status == s {
			matched = true
		}
	}
	if !matched || (t.MaxRetryCount > 0 && p.RetryCount >= t.MaxRetryCount) {
		return nil, appErrors.ErrStaleTransition
	}
	if t.To.IsActive() && !p.Status.IsActive() && r.hasActiveLocked(p.CampaignID, p.ID) {
		return nil, appErrors.AlreadyExists("another active payout exists for this campaign")
	}

	now := time.Now()
	p.Status = t.To
	if t.IncrementRetry {
		p.RetryCount++
	}
	if t.FailureReason != nil {
		p.FailureReason = *t.FailureReason
	}
	if t.TransferCode != "" {
		p.TransferCode = t.TransferCode
	}
	if t.AdminNotes != nil {
		p.AdminNotes = *t.AdminNotes
	}
	if t.ApprovedBy != "" {
		p.ApprovedBy = t.ApprovedBy
		p.ApprovedAt = &now
	}
	if t.ClearTransferReference {
		p.TransferReference = ""
	}
	switch t.To {
	case model.PayoutProcessing:
		p.ProcessingAt = &now
	case model.PayoutCompleted:
		p.CompletedAt = &now
	case model.PayoutFailed:
		p.FailedAt = &now
	case model.PayoutOnHold:
		p.HeldAt = &now
	case model.PayoutRejected:
		p.RejectedAt = &now
	}
	p.UpdatedAt = now
	if c, ok := r.campaigns[p.CampaignID]; ok && (c.PayoutID == p.ID || c.PayoutID == "" || p.Status.IsActive()) {
		c.PayoutStatus = string(p.Status)
		c.PayoutID = p.ID
	}
	cp := *p
	return &cp, nil
}

func (r *fakePayoutRepo) ClaimStaleApproved(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []string{}
	for _, p := range r.payouts {
		if p.Status == model.PayoutApproved && p.UpdatedAt.Before(cutoff) && p.TransferReference == "" {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	now := time.Now()
	for _, id := range ids {
		r.payouts[id].UpdatedAt = now
	}
	return ids, nil
}

// --- gateway ---

type fakeGateway struct {
	mu           sync.Mutex
	recipientErr error
	transferErr  error
	verifyErr    error
	recipients   []gateway.RecipientRequest
	transfers    []gateway.TransferRequest
	transactions map[string]*gateway.Transaction
}

func (g *fakeGateway) CreateRecipient(ctx context.Context, req gateway.RecipientRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recipients = append(g.recipients, req)
	if g.recipientErr != nil {
		return "", g.recipientErr
	}
	return "RCP_" + req.AccountNumber, nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	return &gateway.Transfer{TransferCode: "TRF_" + req.Reference, Reference: req.Reference, Status: "pending"}, nil
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*gateway.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if tx, ok := g.transactions[reference]; ok {
		return tx, nil
	}
	return &gateway.Transaction{Status: "failed", Reference: reference}, nil
}

func (g *fakeGateway) counts() (recipients, transfers int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recipients), len(g.transfers)
}

// --- queue ---

type fakeQueue struct {
	mu        sync.Mutex
	published []string
}

func (q *fakeQueue) Publish(topic string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, topic+":"+string(body))
	return nil
}

func (q *fakeQueue) Subscribe(topic string, handler func(body []byte) error) error { return nil }

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published)
}

// --- wiring ---

type harness struct {
	ledger  *ledger
	payouts *fakePayoutRepo
	gateway *fakeGateway
	queue   *fakeQueue
	orch    *service.TransferOrchestrator
	payout  *service.PayoutService
	review  *service.ReviewService
}

var errGatewayDown = errors.New("connection refused")

func newHarness() *harness {
	l := newLedger()
	payouts := &fakePayoutRepo{ledger: l}
	gw := &fakeGateway{transactions: map[string]*gateway.Transaction{}}
	q := &fakeQueue{}
	log := zap.NewNop()
	audit := &service.AuditLogger{Repo: fakeAuditRepo{l}, Logger: log}

	orch := &service.TransferOrchestrator{
		PayoutRepo: payouts,
		Gateway:    gw,
		Networks:   gateway.NewNetworkTable(map[string]string{"MTN": "MTN", "Vodafone": "VOD", "AirtelTigo": "ATL"}),
		Logger:     log,
	}
	return &harness{
		ledger:  l,
		payouts: payouts,
		gateway: gw,
		queue:   q,
		orch:    orch,
		payout: &service.PayoutService{
			PayoutRepo: payouts,
			UserRepo:   fakeUserRepo{l},
			Executor:   orch,
			Audit:      audit,
			Queue:      q,
			Logger:     log,
			MaxRetries: 3,
		},
		review: &service.ReviewService{
			PayoutRepo: payouts,
			Executor:   orch,
			Audit:      audit,
			Logger:     log,
		},
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// endedCampaign is active, past its end date and fully funded.
func endedCampaign(id, owner string) *model.Campaign {
	past := time.Now().Add(-24 * time.Hour)
	return &model.Campaign{
		ID:           id,
		OwnerID:      owner,
		CreatorName:  "Ama Mensah",
		TargetAmount: money("1000"),
		RaisedAmount: money("1000"),
		Status:       model.CampaignActive,
		EndDate:      &past,
	}
}
