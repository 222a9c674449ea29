package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// TopicCampaignWrites carries a CampaignWrite after any committed campaign change.
const TopicCampaignWrites = "campaign_writes"

// Queue interface
type Queue interface {
	Publish(topic string, body []byte) error
	Subscribe(topic string, handler func(body []byte) error) error
}

// CampaignWrite is the payload published on TopicCampaignWrites.
type CampaignWrite struct {
	CampaignID string `json:"campaign_id"`
}

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(q Queue, topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return q.Publish(topic, body)
}

// InMemoryQueue delivers to every subscriber on a bounded goroutine pool and
// retries a failing handler with linear backoff.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(body []byte) error
	pool       *ants.Pool
	log        *zap.Logger
	MaxRetries int
	Backoff    time.Duration
}

func NewInMemoryQueue(poolSize int, log *zap.Logger) (*InMemoryQueue, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create queue pool: %w", err)
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(body []byte) error),
		pool:       pool,
		log:        log,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}, nil
}

// JobPayload wraps a message body with retry info
type JobPayload struct {
	Topic      string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// Publish hands the body to all subscribers of topic.
func (q *InMemoryQueue) Publish(topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		handler := handler
		job := JobPayload{Topic: topic, Body: body, MaxRetries: q.MaxRetries}
		if err := q.pool.Submit(func() { q.processJob(handler, job) }); err != nil {
			return fmt.Errorf("submit %s job: %w", topic, err)
		}
	}
	return nil
}

func (q *InMemoryQueue) processJob(handler func(body []byte) error, job JobPayload) {
	for {
		err := handler(job.Body)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.log.Error("job permanently failed",
				zap.String("topic", job.Topic),
				zap.Int("attempts", job.RetryCount),
				zap.Error(err),
			)
			return
		}
		q.log.Warn("job failed, retrying",
			zap.String("topic", job.Topic),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits up to timeout for in-flight jobs and releases the pool.
func (q *InMemoryQueue) Close(timeout time.Duration) error {
	return q.pool.ReleaseTimeout(timeout)
}

var _ Queue = (*InMemoryQueue)(nil)
