// Package rabbit implements the broker adapter and the queue workers over
// RabbitMQ.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/claymoreai/claymore/internal/domain"
)

// Broker wraps one AMQP connection. Publishing goes through a dedicated
// confirm-mode channel; each consumer gets its own channel so prefetch is
// applied per queue.
type Broker struct {
	conn        *amqp.Connection
	maxAttempts int

	// republish is republishWithAttempt behind a seam so delivery handling
	// can be tested without a live channel.
	republish func(ctx context.Context, queue string, d amqp.Delivery, attempts int64) error

	mu    sync.Mutex
	pubCh *amqp.Channel
}

var queues = []string{
	domain.QueueLegacyJobs,
	domain.QueueGenerate,
	domain.QueueEvaluate,
	domain.QueueEvo,
}

// Dial connects to the broker with exponential backoff, declares the queues
// and opens the confirm-mode publish channel.
func Dial(ctx context.Context, url string, maxAttempts int) (*Broker, error) {
	var conn *amqp.Connection
	op := func() error {
		var err error
		conn, err = amqp.Dial(url)
		if err != nil {
			slog.Warn("broker dial failed, retrying", slog.String("error", err.Error()))
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("op=rabbit.dial: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("op=rabbit.dial: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("op=rabbit.dial confirm: %w", err)
	}
	for _, q := range queues {
		if _, err := pubCh.QueueDeclare(q, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("op=rabbit.dial declare=%s: %w", q, err)
		}
	}
	b := &Broker{conn: conn, maxAttempts: maxAttempts, pubCh: pubCh}
	b.republish = b.republishWithAttempt
	return b, nil
}

// Close tears down the connection and all of its channels.
func (b *Broker) Close() error { return b.conn.Close() }

// Publish marshals payload to JSON and hands it to the queue, waiting for
// the publisher confirm.
func (b *Broker) Publish(ctx domain.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=rabbit.publish queue=%s: %w", queue, err)
	}
	return b.publishBody(ctx, queue, body, nil)
}

func (b *Broker) publishBody(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	b.mu.Lock()
	conf, err := b.pubCh.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("op=rabbit.publish queue=%s: %w", queue, err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("op=rabbit.publish queue=%s: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("op=rabbit.publish queue=%s: broker nacked publish", queue)
	}
	return nil
}

// republishWithAttempt publishes a copy of the delivery carrying attempts in
// the x-attempts header. The caller acks the original afterwards.
func (b *Broker) republishWithAttempt(ctx context.Context, queue string, d amqp.Delivery, attempts int64) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[domain.AttemptHeader] = attempts
	return b.publishBody(ctx, queue, d.Body, headers)
}

// deliveryAttempts reads the retry count from a delivery's headers. Absence
// means first attempt.
func deliveryAttempts(d amqp.Delivery) int64 {
	v, ok := d.Headers[domain.AttemptHeader]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	default:
		return 0
	}
}
