package gateway

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	assert.NoError(t, err)
	return d
}

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	t.Run("valid signature", func(t *testing.T) {
		header := SignPayload(payload, testSecret, now)
		assert.NoError(t, VerifySignature(payload, header, testSecret, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := SignPayload(payload, "whsec_other", now)
		assert.Error(t, VerifySignature(payload, header, testSecret, now))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := SignPayload(payload, testSecret, now)
		tampered := []byte(`{"id":"evt_1","type":"payment_intent.payment_failed"}`)
		assert.Error(t, VerifySignature(tampered, header, testSecret, now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := SignPayload(payload, testSecret, now.Add(-10*time.Minute))
		assert.Error(t, VerifySignature(payload, header, testSecret, now))
	})

	t.Run("within tolerance", func(t *testing.T) {
		header := SignPayload(payload, testSecret, now.Add(-4*time.Minute))
		assert.NoError(t, VerifySignature(payload, header, testSecret, now))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.Error(t, VerifySignature(payload, "", testSecret, now))
		assert.Error(t, VerifySignature(payload, "t=abc,v1=deadbeef", testSecret, now))
		assert.Error(t, VerifySignature(payload, "v1=deadbeef", testSecret, now))
	})
}

func TestParseEvent(t *testing.T) {
	t.Run("valid event", func(t *testing.T) {
		payload := []byte(`{
			"id": "evt_1",
			"type": "payment_intent.succeeded",
			"data": {
				"object": {
					"id": "pi_123",
					"status": "succeeded",
					"metadata": {"loanId": "loan-1", "paymentNumber": "3"}
				}
			}
		}`)

		event, err := ParseEvent(payload)
		assert.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, EventPaymentSucceeded, event.Type)
		assert.Equal(t, "pi_123", event.Object.Intent.ID)
		assert.Equal(t, "loan-1", event.Object.Intent.Metadata["loanId"])
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := ParseEvent([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(10662), ToCents(mustDecimal(t, "106.62")))
	assert.Equal(t, int64(500000), ToCents(mustDecimal(t, "5000.00")))
	assert.Equal(t, int64(0), ToCents(mustDecimal(t, "0")))
}
