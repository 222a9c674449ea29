package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/middleware"
	"github.com/unclebandit/payout-settlement/internal/model"
)

func serve(auth *middleware.Authenticator, header string) model.Actor {
	var got model.Actor
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.ActorFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/payouts", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMiddlewareResolvesActor(t *testing.T) {
	auth := &middleware.Authenticator{Secret: []byte("s3cret"), Logger: zap.NewNop()}
	token, err := auth.Sign(model.Actor{ID: "admin-1", Role: model.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor := serve(auth, "Bearer "+token)
	if actor.ID != "admin-1" || !actor.IsAdmin() {
		t.Errorf("expected admin-1 admin actor, got %+v", actor)
	}
}

func TestMiddlewareIgnoresBadTokens(t *testing.T) {
	auth := &middleware.Authenticator{Secret: []byte("s3cret"), Logger: zap.NewNop()}
	other := &middleware.Authenticator{Secret: []byte("other"), Logger: zap.NewNop()}
	forged, _ := other.Sign(model.Actor{ID: "u1"}, time.Hour)
	expired, _ := auth.Sign(model.Actor{ID: "u1"}, -time.Hour)

	for name, header := range map[string]string{
		"missing": "",
		"scheme":  "Basic abc",
		"forged":  "Bearer " + forged,
		"expired": "Bearer " + expired,
	} {
		if actor := serve(auth, header); actor.ID != "" {
			t.Errorf("%s: expected anonymous actor, got %+v", name, actor)
		}
	}
}
