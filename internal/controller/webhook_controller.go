package controller

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	appErrors "github.com/unclebandit/payout-settlement/internal/errors"
	"github.com/unclebandit/payout-settlement/internal/gateway"
)

const maxWebhookBody = 1 << 20

type WebhookHandler interface {
	Handle(ctx context.Context, body []byte, signature string) error
}

// WebhookController answers the gateway with a bare status code. Anything but
// 2xx makes the gateway redeliver.
type WebhookController struct {
	Reconciler WebhookHandler
	Logger     *zap.Logger
}

func (c *WebhookController) Paystack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	err = c.Reconciler.Handle(r.Context(), body, r.Header.Get(gateway.SignatureHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case appErrors.Is(err, codes.Unauthenticated):
		w.WriteHeader(http.StatusUnauthorized)
	case appErrors.Is(err, codes.InvalidArgument):
		// Signed but unreadable; a redelivery carries the same bytes.
		c.Logger.Warn("malformed webhook acknowledged", zap.Error(err))
		w.WriteHeader(http.StatusOK)
	default:
		c.Logger.Error("webhook processing failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
