package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecomcore/orderflow/internal/events"
	kafkax "github.com/ecomcore/orderflow/internal/kafka"
)

type recordingMailer struct {
	subjects []string
	err      error
}

func (m *recordingMailer) Send(_ context.Context, _, subject, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.subjects = append(m.subjects, subject)
	return nil
}

// Dedup lookups against an unreachable client miss, which is the safe
// direction for at-least-once delivery.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func message(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	env := events.Envelope{
		EventID:      "ev-1",
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Payload:      kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestHandleRouting(t *testing.T) {
	cases := []struct {
		eventType   string
		payload     any
		wantSubject string
	}{
		{events.EventOrderCreated, events.OrderCreatedPayload{OrderNo: "ORD-1", TotalMinor: 52500, ItemCount: 2}, "Order confirmed"},
		{events.EventOrderPaid, events.OrderPaidPayload{OrderNo: "ORD-1", RemotePaymentID: "rzp_pay_1", AmountMinor: 52500}, "Payment received"},
		{events.EventOrderCancelled, events.OrderCancelledPayload{OrderNo: "ORD-1", Reason: "customer request", RefundStatus: "pending"}, "Order cancelled"},
	}
	for _, c := range cases {
		t.Run(c.eventType, func(t *testing.T) {
			mailer := &recordingMailer{}
			svc := &Service{Redis: deadRedis(), Mailer: mailer, Log: zap.NewNop()}

			require.NoError(t, svc.Handle(context.Background(), message(t, c.eventType, c.payload)))
			assert.Equal(t, []string{c.wantSubject}, mailer.subjects)
		})
	}
}

func TestHandleUnknownEventCommits(t *testing.T) {
	mailer := &recordingMailer{}
	svc := &Service{Redis: deadRedis(), Mailer: mailer, Log: zap.NewNop()}

	require.NoError(t, svc.Handle(context.Background(), message(t, "OrderArchived", map[string]string{})))
	assert.Empty(t, mailer.subjects)
}

func TestHandleDeliveryFailureIsSwallowed(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	svc := &Service{Redis: deadRedis(), Mailer: mailer, Log: zap.NewNop()}

	err := svc.Handle(context.Background(), message(t, events.EventOrderPaid,
		events.OrderPaidPayload{OrderNo: "ORD-1"}))
	require.NoError(t, err, "delivery failure must still commit the offset")
}

func TestHandleMalformedEnvelope(t *testing.T) {
	svc := &Service{Redis: deadRedis(), Mailer: &recordingMailer{}, Log: zap.NewNop()}
	err := svc.Handle(context.Background(), kafkago.Message{Value: []byte("{not json")})
	require.Error(t, err)
}
