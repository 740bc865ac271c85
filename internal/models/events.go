package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind enumerates the event types this service aggregates. Dispatch on
// the pipeline side is a switch over this type, so adding a kind is a
// compile-time-checked change rather than open-ended string matching.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindOrderCreated
	KindOrderConfirmed
	KindOrderCancelled
	KindOrderShipped
	KindPaymentAuthorized
	KindPaymentFailed
)

const (
	EventOrderCreated      = "order.created"
	EventOrderConfirmed    = "order.confirmed"
	EventOrderCancelled    = "order.cancelled"
	EventOrderShipped      = "order.shipped"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
)

// ParseEventKind maps a wire event type to its enumerated kind. Unrecognized
// types map to KindUnknown; they are still ledgered, just never aggregated.
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case EventOrderCreated:
		return KindOrderCreated
	case EventOrderConfirmed:
		return KindOrderConfirmed
	case EventOrderCancelled:
		return KindOrderCancelled
	case EventOrderShipped:
		return KindOrderShipped
	case EventPaymentAuthorized:
		return KindPaymentAuthorized
	case EventPaymentFailed:
		return KindPaymentFailed
	default:
		return KindUnknown
	}
}

// String returns the wire name of the kind, or "unknown".
func (k EventKind) String() string {
	switch k {
	case KindOrderCreated:
		return EventOrderCreated
	case KindOrderConfirmed:
		return EventOrderConfirmed
	case KindOrderCancelled:
		return EventOrderCancelled
	case KindOrderShipped:
		return EventOrderShipped
	case KindPaymentAuthorized:
		return EventPaymentAuthorized
	case KindPaymentFailed:
		return EventPaymentFailed
	default:
		return "unknown"
	}
}

// InboundEvent is a validated, typed event as handed over by the transport.
type InboundEvent struct {
	EventType string          `json:"eventType"`
	OrderID   int64           `json:"orderId"`
	UserID    *int64          `json:"userId"`
	Payload   json.RawMessage `json:"data"`
}

// LineItem is one product line of an order payload.
type LineItem struct {
	ProductID int64
	Quantity  int64
	Price     decimal.Decimal
}

// OrderPayload carries the monetary details of an order event.
type OrderPayload struct {
	TotalAmount decimal.Decimal
	Items       []LineItem
}

// DecodeOrderPayload extracts the monetary fields from a raw event payload.
// Missing or malformed numeric fields degrade to zero contributions instead
// of failing the event, per field and per item.
func DecodeOrderPayload(raw []byte) OrderPayload {
	var aux struct {
		TotalAmount json.RawMessage `json:"totalAmount"`
		Items       []struct {
			ProductID json.RawMessage `json:"productId"`
			Quantity  json.RawMessage `json:"quantity"`
			Price     json.RawMessage `json:"price"`
		} `json:"items"`
	}

	payload := OrderPayload{TotalAmount: decimal.Zero}
	if len(raw) == 0 || json.Unmarshal(raw, &aux) != nil {
		return payload
	}

	payload.TotalAmount = decodeDecimal(aux.TotalAmount)
	for _, item := range aux.Items {
		payload.Items = append(payload.Items, LineItem{
			ProductID: decodeInt(item.ProductID),
			Quantity:  decodeInt(item.Quantity),
			Price:     decodeDecimal(item.Price),
		})
	}

	return payload
}

func decodeDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero
	}
	return d
}

func decodeInt(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// DayBucket truncates a processing instant to its UTC calendar date.
// Buckets are keyed by when the event was processed, not when it occurred;
// late-arriving events land on the processing date.
func DayBucket(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// HourBucket truncates a processing instant to its UTC hour.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
