package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	cases := map[string]EventKind{
		EventOrderCreated:      KindOrderCreated,
		EventOrderConfirmed:    KindOrderConfirmed,
		EventOrderCancelled:    KindOrderCancelled,
		EventOrderShipped:      KindOrderShipped,
		EventPaymentAuthorized: KindPaymentAuthorized,
		EventPaymentFailed:     KindPaymentFailed,
		"promo.applied":        KindUnknown,
		"":                     KindUnknown,
	}

	for eventType, expected := range cases {
		assert.Equal(t, expected, ParseEventKind(eventType), "event type %q", eventType)
	}
}

func TestEventKindStringRoundTrip(t *testing.T) {
	kinds := []EventKind{
		KindOrderCreated,
		KindOrderConfirmed,
		KindOrderCancelled,
		KindOrderShipped,
		KindPaymentAuthorized,
		KindPaymentFailed,
	}
	for _, kind := range kinds {
		assert.Equal(t, kind, ParseEventKind(kind.String()))
	}
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestDecodeOrderPayload(t *testing.T) {
	raw := []byte(`{
		"totalAmount": 74.98,
		"items": [
			{"productId": 1, "quantity": 2, "price": 29.99},
			{"productId": 3, "quantity": 1, "price": 15.00}
		]
	}`)

	payload := DecodeOrderPayload(raw)
	assert.True(t, payload.TotalAmount.Equal(decimal.RequireFromString("74.98")))
	require.Len(t, payload.Items, 2)
	assert.Equal(t, int64(1), payload.Items[0].ProductID)
	assert.Equal(t, int64(2), payload.Items[0].Quantity)
	assert.True(t, payload.Items[0].Price.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, int64(3), payload.Items[1].ProductID)
}

func TestDecodeOrderPayloadMissingFields(t *testing.T) {
	payload := DecodeOrderPayload([]byte(`{}`))
	assert.True(t, payload.TotalAmount.IsZero())
	assert.Empty(t, payload.Items)

	payload = DecodeOrderPayload(nil)
	assert.True(t, payload.TotalAmount.IsZero())
}

func TestDecodeOrderPayloadMalformedFieldsDegradeToZero(t *testing.T) {
	// A bad field zeroes that field only; the rest of the payload still decodes.
	raw := []byte(`{
		"totalAmount": "not-a-number",
		"items": [{"productId": 1, "quantity": "two", "price": 9.99}]
	}`)

	payload := DecodeOrderPayload(raw)
	assert.True(t, payload.TotalAmount.IsZero())
	require.Len(t, payload.Items, 1)
	assert.Equal(t, int64(1), payload.Items[0].ProductID)
	assert.Equal(t, int64(0), payload.Items[0].Quantity)
	assert.True(t, payload.Items[0].Price.Equal(decimal.RequireFromString("9.99")))
}

func TestDecodeOrderPayloadGarbage(t *testing.T) {
	payload := DecodeOrderPayload([]byte(`not json at all`))
	assert.True(t, payload.TotalAmount.IsZero())
	assert.Empty(t, payload.Items)
}

func TestBuckets(t *testing.T) {
	instant := time.Date(2025, 6, 15, 23, 45, 12, 987, time.FixedZone("CEST", 2*3600))

	day := DayBucket(instant)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), day,
		"23:45 CEST is 21:45 UTC, still June 15")

	hour := HourBucket(instant)
	assert.Equal(t, time.Date(2025, 6, 15, 21, 0, 0, 0, time.UTC), hour)
}

func TestBucketsCrossMidnight(t *testing.T) {
	// 01:30 CEST is 23:30 UTC the previous day; UTC decides the bucket.
	instant := time.Date(2025, 6, 16, 1, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), DayBucket(instant))
	assert.Equal(t, time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC), HourBucket(instant))
}
