package events

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ecomcore/orderflow/internal/kafka"
	"github.com/ecomcore/orderflow/internal/orders"
)

// Publisher emits order lifecycle notifications fire-and-forget. The core
// never depends on delivery succeeding.
type Publisher struct {
	Producer *kafkax.Producer
	Service  string
}

func (p *Publisher) OrderCreated(o orders.Order) {
	p.publish(EventOrderCreated, o.OrderNo, OrderCreatedPayload{
		OrderNo:    o.OrderNo,
		TotalMinor: o.Pricing.TotalMinor,
		ItemCount:  len(o.Items),
	})
}

func (p *Publisher) OrderPaid(o orders.Order) {
	p.publish(EventOrderPaid, o.OrderNo, OrderPaidPayload{
		OrderNo:         o.OrderNo,
		RemotePaymentID: o.RemotePaymentID,
		AmountMinor:     o.Pricing.TotalMinor,
	})
}

func (p *Publisher) OrderCancelled(o orders.Order, refundStatus, restockStatus string) {
	p.publish(EventOrderCancelled, o.OrderNo, OrderCancelledPayload{
		OrderNo:       o.OrderNo,
		Reason:        o.CancelReason,
		RefundStatus:  refundStatus,
		RestockStatus: restockStatus,
	})
}

func (p *Publisher) publish(eventType, orderNo string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: orderNo,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Producer.Publish(PartitionKey(orderNo), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
