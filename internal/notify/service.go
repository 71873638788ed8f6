package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/events"
	kafkax "github.com/ecomcore/orderflow/internal/kafka"
	"github.com/ecomcore/orderflow/internal/redisx"
)

// Mailer is the outbound channel; delivery failures never propagate back into
// the order lifecycle.
type Mailer interface {
	Send(ctx context.Context, orderNo, subject, body string) error
}

// LogMailer stands in for a real email/SMS provider.
type LogMailer struct{ Log *zap.Logger }

func (m *LogMailer) Send(ctx context.Context, orderNo, subject, body string) error {
	m.Log.Info("notification dispatched",
		zap.String("order_no", orderNo),
		zap.String("subject", subject))
	return nil
}

// Service consumes order lifecycle events and dispatches customer
// notifications, deduplicating deliveries by event id.
type Service struct {
	Redis  *redis.Client
	Mailer Mailer
	Log    *zap.Logger
}

// Handle is installed as the consumer handler for the order events topic.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// Dedup via Redis: at-least-once delivery means replays are normal.
	dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.send(ctx, p.OrderNo, "Order confirmed",
			fmt.Sprintf("Your order %s has been placed.", p.OrderNo))
	case events.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[events.OrderPaidPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.send(ctx, p.OrderNo, "Payment received",
			fmt.Sprintf("Payment for order %s was received.", p.OrderNo))
	case events.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		body := fmt.Sprintf("Your order %s has been cancelled.", p.OrderNo)
		if p.RefundStatus == "pending" {
			body += " Your refund is being processed."
		}
		return s.send(ctx, p.OrderNo, "Order cancelled", body)
	default:
		return nil
	}
}

func (s *Service) send(ctx context.Context, orderNo, subject, body string) error {
	if err := s.Mailer.Send(ctx, orderNo, subject, body); err != nil {
		// Fire-and-forget: log and commit the offset anyway.
		s.Log.Warn("notification delivery failed",
			zap.String("order_no", orderNo),
			zap.String("subject", subject),
			zap.Error(err))
	}
	return nil
}
