package queue

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named after
// the topic. Failed deliveries are republished with an incremented retry header
// until MaxRetries, then dropped.
type AMQPQueue struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	ch         *amqp.Channel
	pool       *ants.Pool
	log        *zap.Logger
	MaxRetries int
}

func NewAMQPQueue(url string, poolSize int, log *zap.Logger) (*AMQPQueue, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(poolSize, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create consumer pool: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, pool: pool, log: log, MaxRetries: 3}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe starts consuming topic with manual acks. Handlers run on the pool.
func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("register consumer for %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			d := d
			if err := q.pool.Submit(func() { q.handle(topic, d, handler) }); err != nil {
				q.log.Error("submit delivery", zap.String("topic", topic), zap.Error(err))
				d.Nack(false, true)
			}
		}
		q.log.Info("consumer stopped", zap.String("topic", topic))
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler func(body []byte) error) {
	err := handler(d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := RetryCount(d.Headers)
	if retries < q.MaxRetries {
		if perr := q.publish(topic, d.Body, retries+1); perr != nil {
			q.log.Error("requeue failed delivery", zap.String("topic", topic), zap.Error(perr))
			d.Nack(false, true)
			return
		}
		q.log.Warn("delivery failed, requeued",
			zap.String("topic", topic), zap.Int("attempt", retries+1), zap.Error(err))
	} else {
		q.log.Error("delivery permanently failed",
			zap.String("topic", topic), zap.Int("attempts", retries+1), zap.Error(err))
	}
	d.Ack(false)
}

// RetryCount reads the retry header, which arrives as whatever integer width
// the broker decoded.
func RetryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	q.pool.Release()
	q.ch.Close()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
