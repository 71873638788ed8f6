package events

import (
	"encoding/json"
	"time"
)

// All order lifecycle notifications flow through one topic; consumers switch
// on the envelope event type. Partition key = order number so events for one
// order stay ordered.
const TopicOrderEvents = "order.events"

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"` // order number
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderNo    string `json:"order_no"`
	TotalMinor int64  `json:"total_minor"`
	ItemCount  int    `json:"item_count"`
}

type OrderPaidPayload struct {
	OrderNo         string `json:"order_no"`
	RemotePaymentID string `json:"remote_payment_id"`
	AmountMinor     int64  `json:"amount_minor"`
}

type OrderCancelledPayload struct {
	OrderNo       string `json:"order_no"`
	Reason        string `json:"reason"`
	RefundStatus  string `json:"refund_status"`
	RestockStatus string `json:"restock_status"`
}

func PartitionKey(orderNo string) []byte { return []byte(orderNo) }
