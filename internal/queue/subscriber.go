package queue

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// RedFlagRecomputer is the consumer of campaign write events.
type RedFlagRecomputer interface {
	Recompute(ctx context.Context, campaignID string)
}

// StartCampaignWriteSubscriber recomputes red flags for every campaign write.
// Recompute logs its own failures, so deliveries are always acknowledged.
func StartCampaignWriteSubscriber(q Queue, detector RedFlagRecomputer, timeout time.Duration, log *zap.Logger) error {
	return q.Subscribe(TopicCampaignWrites, func(body []byte) error {
		var evt CampaignWrite
		if err := json.Unmarshal(body, &evt); err != nil || evt.CampaignID == "" {
			log.Warn("invalid campaign write payload", zap.ByteString("body", body))
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		detector.Recompute(ctx, evt.CampaignID)
		return nil
	})
}
