package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"influencer-prospector/internal/domain"
	"influencer-prospector/internal/infra/metrics"
)

// RabbitRunQueue реализует очередь прогонов через AMQP. Очередь durable,
// сообщения persistent: задача переживает рестарт брокера.
type RabbitRunQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	deliveries <-chan amqp.Delivery
}

var _ domain.RunQueue = (*RabbitRunQueue)(nil)

// NewRabbitRunQueue подключается к брокеру и объявляет очередь.
func NewRabbitRunQueue(amqpURL, queue string) (*RabbitRunQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	// Один необработанный прогон на воркера: конвейер тяжёлый, prefetch не нужен.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitRunQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitRunQueue) Enqueue(ctx context.Context, job domain.RunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокируется до появления задачи. ack(false) возвращает сообщение
// в очередь через nack с requeue.
func (q *RabbitRunQueue) Receive(ctx context.Context) (domain.RunJob, func(ok bool) error, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.RunJob{}, nil, fmt.Errorf("start consume: %w", err)
		}
		q.deliveries = deliveries
	}

	select {
	case <-ctx.Done():
		return domain.RunJob{}, nil, ctx.Err()
	case d, open := <-q.deliveries:
		if !open {
			return domain.RunJob{}, nil, errors.New("amqp: delivery channel closed")
		}
		var job domain.RunJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			// Нечитаемое сообщение отбрасываем без requeue, иначе оно
			// будет крутиться в очереди вечно.
			_ = d.Nack(false, false)
			return domain.RunJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(ok bool) error {
			if ok {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return job, ack, nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitRunQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
