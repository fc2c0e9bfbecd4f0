package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Intent statuses reported by the payment gateway.
const (
	IntentSucceeded = "succeeded"
	IntentFailed    = "payment_failed"
)

// CreateIntentParams describes a payment to be collected. Amounts are in
// minor units (cents) because that is what the gateway's wire format uses.
type CreateIntentParams struct {
	AmountCents        int64
	Currency           string
	FeeAmountCents     int64
	DestinationAccount string
	Metadata           map[string]string
}

// PaymentIntent is the gateway's view of a payment.
type PaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

// PaymentGateway is the narrow interface the core depends on. The gateway is
// an opaque external collaborator; everything else about card processing
// stays on its side of the fence.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// GetConfig returns gateway configuration with defaults.
func GetConfig() Config {
	viper.SetDefault("gateway.base_url", "https://api.gateway.example.com/v1")
	viper.SetDefault("gateway.timeout", 15*time.Second)

	return Config{
		BaseURL:       viper.GetString("gateway.base_url"),
		SecretKey:     viper.GetString("gateway.secret_key"),
		WebhookSecret: viper.GetString("gateway.webhook_secret"),
		Timeout:       viper.GetDuration("gateway.timeout"),
	}
}

// HTTPGateway talks to the card processor over its REST API. Calls are
// bounded by the configured timeout; on timeout the caller must not assume
// the gateway operation did not happen (the webhook is the second delivery
// path into the same idempotent confirm entry point).
type HTTPGateway struct {
	config Config
	client *http.Client
}

func NewHTTPGateway(config Config) *HTTPGateway {
	return &HTTPGateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (g *HTTPGateway) CreatePaymentIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", params.AmountCents))
	form.Set("currency", strings.ToLower(params.Currency))
	if params.FeeAmountCents > 0 {
		form.Set("application_fee_amount", fmt.Sprintf("%d", params.FeeAmountCents))
	}
	if params.DestinationAccount != "" {
		form.Set("transfer_data[destination]", params.DestinationAccount)
	}
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	return g.do(ctx, http.MethodPost, "/payment_intents", form)
}

func (g *HTTPGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	return g.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(intentID), nil)
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, form url.Values) (*PaymentIntent, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.config.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("[GATEWAY] %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[GATEWAY] %s %s returned status %d", method, path, resp.StatusCode)
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var intent PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &intent, nil
}

// ToCents converts a 2dp decimal amount to minor units for the wire.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
