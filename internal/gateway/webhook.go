package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook event types the platform acts on. Anything else is acknowledged
// and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// DefaultTolerance is how stale a signed webhook timestamp may be.
const DefaultTolerance = 5 * time.Minute

// WebhookEvent is the parsed, signature-verified payload.
type WebhookEvent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Object struct {
		Intent PaymentIntent `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the gateway's signature header against the raw
// payload. The header format is "t=<unix>,v1=<hex hmac-sha256>" where the
// signed message is "<unix>.<payload>". Verification failure means the
// payload must not be trusted and no ledger mutation may occur.
func VerifySignature(payload []byte, sigHeader, secret string, now time.Time) error {
	var ts int64
	var sig string

	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid signature timestamp")
			}
			ts = parsed
		case "v1":
			sig = kv[1]
		}
	}

	if ts == 0 || sig == "" {
		return fmt.Errorf("malformed signature header")
	}

	if now.Sub(time.Unix(ts, 0)) > DefaultTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}

	return nil
}

// SignPayload produces a signature header for a payload. Used by tests and
// local gateway simulation.
func SignPayload(payload []byte, secret string, at time.Time) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", at.Unix())
	h.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(h.Sum(nil)))
}

// ParseEvent decodes a verified webhook payload.
func ParseEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook event: %w", err)
	}
	return &event, nil
}
