// internal/handler/campaign_write_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/queue"
)

// CampaignWriteHandler is the post-commit hook called by whoever writes a
// campaign. It only enqueues; the red-flag recompute runs in the consumer.
type CampaignWriteHandler struct {
	Queue  queue.Queue
	Logger *zap.Logger
}

func (h *CampaignWriteHandler) Routes(r chi.Router) {
	r.Post("/internal/campaigns/{id}/writes", h.CampaignWritten)
	r.Get("/healthz", Health)
}

// CampaignWritten answers 202 once the event is queued.
func (h *CampaignWriteHandler) CampaignWritten(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	if err := queue.PublishJSON(h.Queue, queue.TopicCampaignWrites, queue.CampaignWrite{CampaignID: id}); err != nil {
		h.Logger.Error("enqueue campaign write", zap.String("campaign_id", id), zap.Error(err))
		http.Error(w, "failed to enqueue campaign write", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Health reports liveness only.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "payout-settlement",
	})
}
