package rabbit

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/observability"
)

// Outcome is a handler's verdict on one delivery.
type Outcome int

const (
	// Success acks the delivery. The legacy consumer nack-requeues instead
	// so the same job keeps producing.
	Success Outcome = iota
	// Overflow acks: the job already reached its target.
	Overflow
	// Retry republishes with an incremented attempt header, unless the
	// ceiling is reached, in which case the delivery is dropped.
	Retry
	// Drop acks without retrying (bad payload, superseded job).
	Drop
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Overflow:
		return "overflow"
	case Retry:
		return "retry"
	case Drop:
		return "drop"
	}
	return "unknown"
}

// Handler processes one delivery body.
type Handler func(ctx context.Context, body []byte) Outcome

// chatRetry maps a chat-path failure onto the retry outcome. Transient
// upstream and credential-pool failures are the expected case and log at
// warn; anything else still rides the bounded republish path but logs at
// error since it points at a bug rather than provider weather.
func chatRetry(msg string, err error, attrs ...any) Outcome {
	attrs = append(attrs, slog.String("error", err.Error()))
	if domain.IsTransientUpstream(err) {
		slog.Warn(msg, attrs...)
	} else {
		slog.Error(msg, attrs...)
	}
	return Retry
}

// Consume runs the standard consume loop for queue until ctx is done.
// Deliveries are handled in parallel up to prefetch.
func (b *Broker) Consume(ctx context.Context, queue string, prefetch int, h Handler) error {
	return b.consume(ctx, queue, prefetch, h, false)
}

// ConsumeLegacy runs the legacy loop: Success nack-requeues the delivery so
// the next redelivery drives another unit of the same job.
func (b *Broker) ConsumeLegacy(ctx context.Context, queue string, h Handler) error {
	return b.consume(ctx, queue, 1, h, true)
}

func (b *Broker) consume(ctx context.Context, queue string, prefetch int, h Handler, legacy bool) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("op=rabbit.consume queue=%s: %w", queue, err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("op=rabbit.consume queue=%s: %w", queue, err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("op=rabbit.consume queue=%s: %w", queue, err)
	}

	slog.Info("consumer started", slog.String("queue", queue), slog.Int("prefetch", prefetch))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("op=rabbit.consume queue=%s: delivery channel closed", queue)
			}
			// prefetch bounds the number of unacked deliveries, and with it
			// the number of these goroutines
			go b.handleDelivery(ctx, queue, d, h, legacy)
		}
	}
}

func (b *Broker) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, h Handler, legacy bool) {
	attempts := deliveryAttempts(d)
	outcome := h(ctx, d.Body)
	observability.ObserveDelivery(queue, outcome.String())

	switch outcome {
	case Success:
		if legacy {
			if err := d.Nack(false, true); err != nil {
				slog.Error("requeue failed", slog.String("queue", queue), slog.String("error", err.Error()))
			}
			return
		}
		b.ack(queue, d)
	case Overflow, Drop:
		b.ack(queue, d)
	case Retry:
		if attempts >= int64(b.maxAttempts) {
			observability.ObserveDrop(queue)
			slog.Warn("delivery dropped at retry ceiling",
				slog.String("queue", queue),
				slog.Int64("attempts", attempts))
			b.ack(queue, d)
			return
		}
		if err := b.republish(ctx, queue, d, attempts+1); err != nil {
			slog.Error("republish failed, requeueing",
				slog.String("queue", queue), slog.String("error", err.Error()))
			if err := d.Nack(false, true); err != nil {
				slog.Error("requeue failed", slog.String("queue", queue), slog.String("error", err.Error()))
			}
			return
		}
		observability.ObserveRetry(queue)
		b.ack(queue, d)
	}
}

func (b *Broker) ack(queue string, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		slog.Error("ack failed", slog.String("queue", queue), slog.String("error", err.Error()))
	}
}
