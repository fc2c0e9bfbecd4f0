package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/peerfund/backend/internal/middleware"
	"github.com/peerfund/backend/internal/services"
)

type RepaymentHandler struct {
	service   *services.RepaymentService
	notifier  *services.NotificationService
	validator *services.ValidationHelper
}

func NewRepaymentHandler(service *services.RepaymentService, notifier *services.NotificationService) *RepaymentHandler {
	return &RepaymentHandler{
		service:   service,
		notifier:  notifier,
		validator: services.NewValidationHelper(),
	}
}

// CreateIntent starts paying the next installment
// @Summary Create repayment intent
// @Description Create a payment intent for the loan's next unpaid installment
// @Tags repayments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} services.RepaymentIntent
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{id}/repay/intent [post]
func (h *RepaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	loanID := chi.URLParam(r, "id")

	intent, err := h.service.CreateRepaymentIntent(r.Context(), loanID, borrowerID)
	if err != nil {
		log.Printf("[REPAY] Intent creation failed for loan %s: %v", loanID, err)
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// Confirm applies a succeeded payment to the schedule
// @Summary Confirm repayment
// @Description Verify a payment intent with the gateway and apply it to the schedule
// @Tags repayments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{paymentIntentId=string} true "Payment intent reference"
// @Success 200 {object} services.RepaymentResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /repayments/confirm [post]
func (h *RepaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

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

	result, events, err := h.service.ConfirmPayment(r.Context(), req.PaymentIntentID, borrowerID)
	if err != nil {
		log.Printf("[REPAY] Confirmation failed for intent %s: %v", req.PaymentIntentID, err)
		services.SendDomainError(w, err)
		return
	}

	h.notifier.Dispatch(r.Context(), events)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetLoan fetches a funded loan with its schedule
// @Summary Get funded loan
// @Description Fetch a funded loan and its amortization schedule
// @Tags repayments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} models.FundedLoan
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{id} [get]
func (h *RepaymentHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

// GetSchedule fetches only the loan's schedule
// @Summary Get repayment schedule
// @Description Fetch the amortization schedule for a funded loan
// @Tags repayments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {array} models.ScheduleEntry
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{id}/schedule [get]
func (h *RepaymentHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan.Schedule)
}

// MyLoans lists the borrower's funded loans
// @Summary List own funded loans
// @Description List all funded loans where the caller is the borrower
// @Tags repayments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.FundedLoan
// @Failure 401 {object} services.ErrorResponse
// @Router /loans [get]
func (h *RepaymentHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	loans, err := h.service.GetBorrowerLoans(r.Context(), borrowerID)
	if err != nil {
		log.Printf("[REPAY] Loan listing failed for user %d: %v", borrowerID, err)
		services.SendErrorResponse(w, "Failed to list loans", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loans)
}

// History lists the borrower's repayment transactions
// @Summary Repayment history
// @Description List the caller's repayment transactions, newest first
// @Tags repayments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Transaction
// @Failure 401 {object} services.ErrorResponse
// @Router /repayments/history [get]
func (h *RepaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	history, err := h.service.History(r.Context(), borrowerID)
	if err != nil {
		log.Printf("[REPAY] History listing failed for user %d: %v", borrowerID, err)
		services.SendErrorResponse(w, "Failed to list history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}
