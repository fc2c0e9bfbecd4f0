package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/peerfund/backend/internal/gateway"
	"github.com/peerfund/backend/internal/services"
	"github.com/spf13/viper"
)

// WebhookHandler receives payment gateway callbacks. It is the unauthenticated
// edge of the system: nothing here is trusted until the signature verifies,
// and duplicate deliveries must land on the idempotent confirmation path.
type WebhookHandler struct {
	repayments *services.RepaymentService
	notifier   *services.NotificationService
	secret     string
}

func NewWebhookHandler(repayments *services.RepaymentService, notifier *services.NotificationService) *WebhookHandler {
	return &WebhookHandler{
		repayments: repayments,
		notifier:   notifier,
		secret:     viper.GetString("gateway.webhook_secret"),
	}
}

// HandleWebhook processes a gateway event
// @Summary Payment gateway webhook
// @Description Receive and verify signed payment gateway events
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Gateway-Signature header string true "Signature header"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Router /webhooks/gateway [post]
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Failed to read payload", http.StatusBadRequest, nil)
		return
	}

	sigHeader := r.Header.Get("Gateway-Signature")
	if err := gateway.VerifySignature(payload, sigHeader, h.secret, time.Now()); err != nil {
		log.Printf("[WEBHOOK] Signature verification failed: %v", err)
		services.SendErrorResponse(w, "Invalid signature", http.StatusBadRequest, nil)
		return
	}

	event, err := gateway.ParseEvent(payload)
	if err != nil {
		log.Printf("[WEBHOOK] Malformed event payload: %v", err)
		services.SendErrorResponse(w, "Malformed event", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[WEBHOOK] Received %s event %s", event.Type, event.ID)

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		h.handleSucceeded(w, r, event)
	case gateway.EventPaymentFailed:
		h.handleFailed(w, r, event)
	default:
		// Acknowledge unhandled event types so the gateway stops retrying.
		respondOK(w, "ignored")
	}
}

func (h *WebhookHandler) handleSucceeded(w http.ResponseWriter, r *http.Request, event *gateway.WebhookEvent) {
	intentID := event.Object.Intent.ID

	_, events, err := h.repayments.ConfirmPayment(r.Context(), intentID, 0)
	if err != nil {
		// The gateway redelivers events; a payment already applied is success.
		if errors.Is(err, services.ErrAlreadyProcessed) {
			respondOK(w, "already processed")
			return
		}
		// Succeeded events without repayment metadata (funding intents, other
		// products) are not ours to apply; acknowledge so the gateway stops
		// redelivering.
		if errors.Is(err, services.ErrInvalidPayment) {
			log.Printf("[WEBHOOK] Intent %s carries no repayment metadata, ignoring", intentID)
			respondOK(w, "ignored")
			return
		}
		log.Printf("[WEBHOOK] Failed to apply payment for intent %s: %v", intentID, err)
		services.SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	h.notifier.Dispatch(r.Context(), events)
	respondOK(w, "processed")
}

func (h *WebhookHandler) handleFailed(w http.ResponseWriter, r *http.Request, event *gateway.WebhookEvent) {
	intentID := event.Object.Intent.ID
	reason := "payment failed at gateway"

	if err := h.repayments.MarkEntryFailed(r.Context(), intentID, reason); err != nil {
		log.Printf("[WEBHOOK] Failed to record payment failure for intent %s: %v", intentID, err)
	}

	respondOK(w, "recorded")
}

func respondOK(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"received": status})
}
