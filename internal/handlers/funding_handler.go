package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/peerfund/backend/internal/middleware"
	"github.com/peerfund/backend/internal/services"
)

type FundingHandler struct {
	service   *services.FundingService
	notifier  *services.NotificationService
	validator *services.ValidationHelper
}

func NewFundingHandler(service *services.FundingService, notifier *services.NotificationService) *FundingHandler {
	return &FundingHandler{
		service:   service,
		notifier:  notifier,
		validator: services.NewValidationHelper(),
	}
}

// CreateIntent starts funding a loan request
// @Summary Create funding intent
// @Description Create a payment intent to fund a pending loan request
// @Tags funding
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan request ID"
// @Success 200 {object} services.FundingIntent
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/requests/{id}/fund/intent [post]
func (h *FundingHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	lenderID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "id")

	intent, err := h.service.CreateFundingIntent(r.Context(), requestID, lenderID)
	if err != nil {
		log.Printf("[FUNDING] Intent creation failed for request %s: %v", requestID, err)
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// Fund completes funding after payment succeeds
// @Summary Fund loan request
// @Description Execute the funding transition after the lender's payment succeeded
// @Tags funding
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan request ID"
// @Param request body object{paymentIntentId=string} true "Payment intent reference"
// @Success 201 {object} models.FundedLoan
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/requests/{id}/fund [post]
func (h *FundingHandler) Fund(w http.ResponseWriter, r *http.Request) {
	lenderID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "id")

	var req struct {
		PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	}
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	loan, events, err := h.service.FundLoan(r.Context(), requestID, lenderID, req.PaymentIntentID)
	if err != nil {
		log.Printf("[FUNDING] Funding failed for request %s: %v", requestID, err)
		services.SendDomainError(w, err)
		return
	}

	h.notifier.Dispatch(r.Context(), events)

	log.Printf("[FUNDING] Loan %s funded by user %d", loan.ID, lenderID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}
