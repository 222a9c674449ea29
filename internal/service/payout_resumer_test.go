package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/service"
)

func (h *harness) resumer() *service.PayoutResumer {
	return &service.PayoutResumer{
		PayoutRepo: h.payouts,
		Executor:   h.orch,
		Logger:     zap.NewNop(),
		Grace:      5 * time.Minute,
	}
}

func stalePayout(h *harness, id string, status model.PayoutStatus, age time.Duration) *model.Payout {
	if _, ok := h.ledger.campaigns["c-"+id]; !ok {
		h.ledger.campaigns["c-"+id] = endedCampaign("c-"+id, creator.ID)
	}
	p := &model.Payout{
		ID: id, CampaignID: "c-" + id, CreatorID: creator.ID, Amount: money("250"),
		MomoNetwork: "AirtelTigo", MomoNumber: "0271234567", Status: status,
		UpdatedAt: time.Now().Add(-age),
	}
	h.ledger.addPayout(p)
	return p
}

func TestResumerDrivesStaleApproved(t *testing.T) {
	h := newHarness()
	stalePayout(h, "p1", model.PayoutApproved, time.Hour)
	stalePayout(h, "p2", model.PayoutApproved, time.Minute)
	stalePayout(h, "p3", model.PayoutPendingReview, time.Hour)

	if n := h.resumer().RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 resumed payout, got %d", n)
	}
	if p := h.ledger.payout("p1"); p.Status != model.PayoutProcessing {
		t.Errorf("stale payout not resumed: %s", p.Status)
	}
	if p := h.ledger.payout("p2"); p.Status != model.PayoutApproved {
		t.Errorf("fresh payout claimed: %s", p.Status)
	}
	if p := h.ledger.payout("p3"); p.Status != model.PayoutPendingReview {
		t.Errorf("unapproved payout touched: %s", p.Status)
	}
}

func TestResumerSkipsInitiatedTransfers(t *testing.T) {
	h := newHarness()
	p := stalePayout(h, "p1", model.PayoutApproved, time.Hour)
	p.TransferReference = "payout_p1_1"

	if n := h.resumer().RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected nothing resumed, got %d", n)
	}
	if _, transfers := h.gateway.counts(); transfers != 0 {
		t.Error("a payout with a transfer reference must not be paid again")
	}
}

func TestResumerBatchAndFailures(t *testing.T) {
	h := newHarness()
	for _, id := range []string{"p1", "p2", "p3"} {
		stalePayout(h, id, model.PayoutApproved, time.Hour)
	}
	h.gateway.transferErr = errGatewayDown
	r := h.resumer()
	r.BatchSize = 2

	if n := r.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected no successes, got %d", n)
	}
	if h.ledger.payout("p1").Status != model.PayoutFailed || h.ledger.payout("p2").Status != model.PayoutFailed {
		t.Error("claimed payouts should be failed by the orchestrator")
	}
	if h.ledger.payout("p3").Status != model.PayoutApproved {
		t.Error("payout beyond the batch should wait for the next run")
	}
}
