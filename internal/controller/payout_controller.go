// internal/controller/payout_controller.go
package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/middleware"
	"github.com/unclebandit/payout-settlement/internal/model"
	"github.com/unclebandit/payout-settlement/internal/service"
)

type PayoutRequester interface {
	RequestPayout(ctx context.Context, actor model.Actor, in service.RequestPayoutInput) (*service.RequestPayoutResult, error)
	RetryPayout(ctx context.Context, actor model.Actor, payoutID string) (*service.ActionResult, error)
}

type PayoutReviewer interface {
	Approve(ctx context.Context, actor model.Actor, payoutID, notes string) (*service.ActionResult, error)
	Reject(ctx context.Context, actor model.Actor, payoutID, reason string) (*service.ActionResult, error)
	Hold(ctx context.Context, actor model.Actor, payoutID, reason string) (*service.ActionResult, error)
}

type PayoutController struct {
	Payouts PayoutRequester
	Reviews PayoutReviewer
	Logger  *zap.Logger
}

// Routes mounts the payout endpoints on r.
func (c *PayoutController) Routes(r chi.Router) {
	r.Post("/payouts", c.RequestPayout)
	r.Post("/payouts/{id}/approve", c.ApprovePayout)
	r.Post("/payouts/{id}/reject", c.RejectPayout)
	r.Post("/payouts/{id}/hold", c.HoldPayout)
	r.Post("/payouts/{id}/retry", c.RetryPayout)
}

func (c *PayoutController) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var body service.RequestPayoutInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.Payouts.RequestPayout(r.Context(), middleware.ActorFrom(r.Context()), body)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (c *PayoutController) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.Reviews.Approve(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"), body.Notes)
	c.respond(w, r, res, err)
}

func (c *PayoutController) RejectPayout(w http.ResponseWriter, r *http.Request) {
	c.pause(w, r, c.Reviews.Reject)
}

func (c *PayoutController) HoldPayout(w http.ResponseWriter, r *http.Request) {
	c.pause(w, r, c.Reviews.Hold)
}

func (c *PayoutController) RetryPayout(w http.ResponseWriter, r *http.Request) {
	res, err := c.Payouts.RetryPayout(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"))
	c.respond(w, r, res, err)
}

type pauseFunc func(ctx context.Context, actor model.Actor, payoutID, reason string) (*service.ActionResult, error)

func (c *PayoutController) pause(w http.ResponseWriter, r *http.Request, fn pauseFunc) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	res, err := fn(r.Context(), middleware.ActorFrom(r.Context()), chi.URLParam(r, "id"), body.Reason)
	c.respond(w, r, res, err)
}

func (c *PayoutController) respond(w http.ResponseWriter, r *http.Request, res *service.ActionResult, err error) {
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *PayoutController) fail(w http.ResponseWriter, r *http.Request, err error) {
	if appErrors.Is(err, codes.Internal) {
		c.Logger.Error("payout request failed",
			zap.String("path", r.URL.Path),
			zap.String("payout_id", chi.URLParam(r, "id")),
			zap.Error(err),
		)
	}
	writeError(w, err)
}
