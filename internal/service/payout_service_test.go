package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/service"
)

var creator = model.Actor{ID: "creator-1", Role: "creator"}

func requestInput(campaignID string) service.RequestPayoutInput {
	return service.RequestPayoutInput{CampaignID: campaignID, MomoNumber: "0241234567", MomoNetwork: "MTN"}
}

func assertCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := appErrors.CodeOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func TestRequestPayoutUnverifiedCreatorNeedsReview(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	h.ledger.users[creator.ID] = &model.User{ID: creator.ID, IsVerified: false}

	res, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.PayoutPendingReview {
		t.Errorf("expected pending_review, got %s", res.Status)
	}
	if !res.Amount.Equal(money("1000")) {
		t.Errorf("expected amount 1000, got %s", res.Amount)
	}

	p := h.ledger.payout(res.PayoutID)
	if p.Status != model.PayoutPendingReview || !p.Amount.Equal(money("1000")) {
		t.Errorf("unexpected stored payout %+v", p)
	}
	c := h.ledger.campaign("c1")
	if c.PayoutStatus != string(model.PayoutPendingReview) || c.PayoutID != p.ID {
		t.Errorf("campaign mirror not updated: %+v", c)
	}
	if _, transfers := h.gateway.counts(); transfers != 0 {
		t.Errorf("expected no transfer before review, got %d", transfers)
	}
	if h.queue.count() != 1 {
		t.Errorf("expected one campaign write event, got %d", h.queue.count())
	}
}

func TestRequestPayoutTrustedCreatorIsAutoApproved(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["old"] = endedCampaign("old", creator.ID)
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	h.ledger.users[creator.ID] = &model.User{ID: creator.ID, IsVerified: true}
	h.ledger.addPayout(&model.Payout{ID: "p-old", CampaignID: "old", CreatorID: creator.ID, Status: model.PayoutCompleted, Amount: money("50")})

	res, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.PayoutProcessing {
		t.Fatalf("expected processing after transfer, got %s", res.Status)
	}

	p := h.ledger.payout(res.PayoutID)
	if p.TransferCode == "" {
		t.Error("expected transfer code to be stored")
	}
	if p.RecipientCode != "RCP_0241234567" {
		t.Errorf("expected recipient code stored, got %q", p.RecipientCode)
	}
	if h.ledger.campaign("c1").PayoutStatus != string(model.PayoutProcessing) {
		t.Error("campaign mirror should read processing")
	}
}

func TestRequestPayoutVerifiedWithoutHistoryNeedsReview(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	h.ledger.users[creator.ID] = &model.User{ID: creator.ID, IsVerified: true}

	res, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.PayoutPendingReview {
		t.Errorf("expected pending_review, got %s", res.Status)
	}
}

func TestRequestPayoutValidation(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)

	cases := []struct {
		name   string
		actor  model.Actor
		in     service.RequestPayoutInput
		mutate func(c *model.Campaign)
		want   codes.Code
	}{
		{"anonymous", model.Actor{}, requestInput("c1"), nil, codes.Unauthenticated},
		{"missing momo", creator, service.RequestPayoutInput{CampaignID: "c1", MomoNetwork: "MTN"}, nil, codes.InvalidArgument},
		{"unknown campaign", creator, requestInput("nope"), nil, codes.NotFound},
		{"not owner", model.Actor{ID: "someone-else"}, requestInput("c1"), nil, codes.PermissionDenied},
		{"frozen", creator, requestInput("c1"), func(c *model.Campaign) { c.Status = model.CampaignFrozen }, codes.FailedPrecondition},
		{"still running below goal", creator, requestInput("c1"), func(c *model.Campaign) {
			c.EndDate = &future
			c.RaisedAmount = money("400")
		}, codes.FailedPrecondition},
		{"no funds", creator, requestInput("c1"), func(c *model.Campaign) { c.RaisedAmount = money("0") }, codes.FailedPrecondition},
		// Ownership is checked before status.
		{"not owner of frozen", model.Actor{ID: "x"}, requestInput("c1"), func(c *model.Campaign) { c.Status = model.CampaignFrozen }, codes.PermissionDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			c := endedCampaign("c1", creator.ID)
			if tc.mutate != nil {
				tc.mutate(c)
			}
			h.ledger.campaigns["c1"] = c

			_, err := h.payout.RequestPayout(context.Background(), tc.actor, tc.in)
			assertCode(t, err, tc.want)
			if len(h.ledger.payouts) != 0 {
				t.Errorf("expected no payout row, got %d", len(h.ledger.payouts))
			}
			if h.queue.count() != 0 {
				t.Error("rejected request must not publish")
			}
		})
	}
}

func TestRequestPayoutRunningCampaignAtGoal(t *testing.T) {
	h := newHarness()
	future := time.Now().Add(48 * time.Hour)
	c := endedCampaign("c1", creator.ID)
	c.EndDate = &future
	h.ledger.campaigns["c1"] = c

	if _, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1")); err != nil {
		t.Fatalf("goal reached before end date should be payable: %v", err)
	}
}

func TestRequestPayoutDuplicateIsRejected(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)

	if _, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1")); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1"))
	assertCode(t, err, codes.AlreadyExists)
}

func TestRequestPayoutConcurrentRequestsCreateOnePayout(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !appErrors.Is(err, codes.AlreadyExists) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful request, got %d", ok)
	}
	if len(h.ledger.payouts) != 1 {
		t.Errorf("expected one payout row, got %d", len(h.ledger.payouts))
	}
}

func TestRequestPayoutAllowedAfterRejection(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	h.ledger.addPayout(&model.Payout{ID: "p-rej", CampaignID: "c1", CreatorID: creator.ID, Status: model.PayoutRejected, Amount: money("1000")})

	if _, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1")); err != nil {
		t.Fatalf("rejected payout should not block a new request: %v", err)
	}
}

func TestRequestPayoutGatewayFailureKeepsFailedRow(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["old"] = endedCampaign("old", creator.ID)
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	h.ledger.users[creator.ID] = &model.User{ID: creator.ID, IsVerified: true}
	h.ledger.addPayout(&model.Payout{ID: "p-old", CampaignID: "old", CreatorID: creator.ID, Status: model.PayoutCompleted, Amount: money("50")})
	h.gateway.transferErr = errGatewayDown

	_, err := h.payout.RequestPayout(context.Background(), creator, requestInput("c1"))
	assertCode(t, err, codes.Internal)

	c := h.ledger.campaign("c1")
	p := h.ledger.payout(c.PayoutID)
	if p.Status != model.PayoutFailed || p.RetryCount != 1 || p.FailureReason == "" {
		t.Errorf("expected failed payout with retry 1 and reason, got %+v", p)
	}
	if c.PayoutStatus != string(model.PayoutFailed) {
		t.Errorf("campaign mirror should read failed, got %s", c.PayoutStatus)
	}
}

func failedPayout(h *harness, retries int) model.Payout {
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	p := &model.Payout{
		ID: "p1", CampaignID: "c1", CreatorID: creator.ID, Amount: money("1000"),
		MomoNetwork: "MTN", MomoNumber: "0241234567", Status: model.PayoutFailed,
		RetryCount: retries, FailureReason: "Insufficient balance", RecipientCode: "RCP_existing",
		TransferReference: "payout_p1_1",
	}
	h.ledger.addPayout(p)
	return *p
}

func TestRetryPayoutMaxRetries(t *testing.T) {
	h := newHarness()
	failedPayout(h, 3)

	_, err := h.payout.RetryPayout(context.Background(), creator, "p1")
	assertCode(t, err, codes.FailedPrecondition)
	if appErrors.MessageOf(err) != "Maximum retry attempts reached" {
		t.Errorf("unexpected message %q", appErrors.MessageOf(err))
	}
	if p := h.ledger.payout("p1"); p.Status != model.PayoutFailed {
		t.Errorf("payout must stay failed, got %s", p.Status)
	}
}

func TestRetryPayoutReusesRecipient(t *testing.T) {
	h := newHarness()
	failedPayout(h, 1)

	res, err := h.payout.RetryPayout(context.Background(), creator, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}

	recipients, transfers := h.gateway.counts()
	if recipients != 0 {
		t.Errorf("recipient must not be registered again, got %d calls", recipients)
	}
	if transfers != 1 {
		t.Errorf("expected one transfer, got %d", transfers)
	}
	p := h.ledger.payout("p1")
	if p.Status != model.PayoutProcessing || p.FailureReason != "" {
		t.Errorf("expected processing with cleared reason, got %+v", p)
	}
	if p.TransferReference == "payout_p1_1" || p.TransferReference == "" {
		t.Errorf("expected a fresh transfer reference, got %q", p.TransferReference)
	}
	if len(h.ledger.audit) != 1 || h.ledger.audit[0].Action != model.AuditRetryPayout {
		t.Errorf("expected one retry audit entry, got %+v", h.ledger.audit)
	}
}

func TestRetryPayoutPermissions(t *testing.T) {
	h := newHarness()
	failedPayout(h, 0)

	_, err := h.payout.RetryPayout(context.Background(), model.Actor{ID: "stranger"}, "p1")
	assertCode(t, err, codes.PermissionDenied)

	_, err = h.payout.RetryPayout(context.Background(), model.Actor{}, "p1")
	assertCode(t, err, codes.Unauthenticated)

	if _, err := h.payout.RetryPayout(context.Background(), model.Actor{ID: "admin-1", Role: model.RoleAdmin}, "p1"); err != nil {
		t.Fatalf("admin retry should succeed: %v", err)
	}
}

func TestRetryPayoutRequiresFailedStatus(t *testing.T) {
	h := newHarness()
	h.ledger.campaigns["c1"] = endedCampaign("c1", creator.ID)
	h.ledger.addPayout(&model.Payout{ID: "p1", CampaignID: "c1", CreatorID: creator.ID, Status: model.PayoutProcessing, Amount: money("1")})

	_, err := h.payout.RetryPayout(context.Background(), creator, "p1")
	assertCode(t, err, codes.FailedPrecondition)
}

func TestRetryPayoutBlockedByNewerActivePayout(t *testing.T) {
	h := newHarness()
	failedPayout(h, 0)
	h.ledger.addPayout(&model.Payout{ID: "p2", CampaignID: "c1", CreatorID: creator.ID, Status: model.PayoutPendingReview, Amount: money("1000")})

	_, err := h.payout.RetryPayout(context.Background(), creator, "p1")
	assertCode(t, err, codes.AlreadyExists)
}

func TestRetryFailureIncrementsUntilExhausted(t *testing.T) {
	h := newHarness()
	failedPayout(h, 0)
	h.gateway.transferErr = errGatewayDown

	for i := 1; i <= 3; i++ {
		_, err := h.payout.RetryPayout(context.Background(), creator, "p1")
		assertCode(t, err, codes.Internal)
		if got := h.ledger.payout("p1").RetryCount; got != i {
			t.Fatalf("attempt %d: expected retry count %d, got %d", i, i, got)
		}
	}
	_, err := h.payout.RetryPayout(context.Background(), creator, "p1")
	assertCode(t, err, codes.FailedPrecondition)
}

func TestAuditFailureDoesNotFailRetry(t *testing.T) {
	h := newHarness()
	failedPayout(h, 0)
	h.ledger.auditErr = errGatewayDown

	if _, err := h.payout.RetryPayout(context.Background(), creator, "p1"); err != nil {
		t.Fatalf("audit failure leaked into retry: %v", err)
	}
	if h.ledger.payout("p1").Status != model.PayoutProcessing {
		t.Error("expected transition to go through")
	}
}
