package services

import (
	"context"
	"fmt"

	"github.com/peerfund/backend/internal/gateway"
)

// mockGateway is an in-memory PaymentGateway for service tests.
type mockGateway struct {
	intents   map[string]*gateway.PaymentIntent
	createErr error
	created   []gateway.CreateIntentParams
}

func newMockGateway() *mockGateway {
	return &mockGateway{intents: map[string]*gateway.PaymentIntent{}}
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.PaymentIntent, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, params)

	intent := &gateway.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", len(m.created)),
		ClientSecret: "cs_test_secret",
		Status:       "requires_payment_method",
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}
	m.intents[intent.ID] = intent
	return intent, nil
}

func (m *mockGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error) {
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent %s", intentID)
	}
	return intent, nil
}

func (m *mockGateway) succeed(intentID string) {
	if intent, ok := m.intents[intentID]; ok {
		intent.Status = gateway.IntentSucceeded
	}
}

// addIntent registers a pre-built intent, bypassing creation.
func (m *mockGateway) addIntent(intent *gateway.PaymentIntent) {
	m.intents[intent.ID] = intent
}
