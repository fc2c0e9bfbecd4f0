package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/peerfund/backend/internal/middleware"
	"github.com/peerfund/backend/internal/services"
)

type LoanHandler struct {
	service   *services.LoanService
	validator *services.ValidationHelper
}

func NewLoanHandler(service *services.LoanService) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CreateRequest creates a loan request
// @Summary Create loan request
// @Description Create a new loan request as a borrower
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateLoanRequestInput true "Loan request"
// @Success 201 {object} models.LoanRequest
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /loans/requests [post]
func (h *LoanHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req services.CreateLoanRequestInput
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	request, err := h.service.CreateLoanRequest(r.Context(), borrowerID, req)
	if err != nil {
		log.Printf("[LOAN] Request creation failed for user %d: %v", borrowerID, err)
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	log.Printf("[LOAN] Request %s created by user %d", request.ID, borrowerID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// Marketplace lists fundable loan requests
// @Summary Browse marketplace
// @Description List pending loan requests open for funding
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.LoanRequest
// @Failure 500 {object} services.ErrorResponse
// @Router /loans/marketplace [get]
func (h *LoanHandler) Marketplace(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListMarketplace(r.Context())
	if err != nil {
		log.Printf("[LOAN] Marketplace listing failed: %v", err)
		services.SendErrorResponse(w, "Failed to list marketplace", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// MyRequests lists the borrower's own loan requests
// @Summary List own loan requests
// @Description List all loan requests created by the authenticated borrower
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.LoanRequest
// @Failure 401 {object} services.ErrorResponse
// @Router /loans/requests [get]
func (h *LoanHandler) MyRequests(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requests, err := h.service.ListBorrowerRequests(r.Context(), borrowerID)
	if err != nil {
		log.Printf("[LOAN] Request listing failed for user %d: %v", borrowerID, err)
		services.SendErrorResponse(w, "Failed to list requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// GetRequest fetches one loan request
// @Summary Get loan request
// @Description Fetch a single loan request by id
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan request ID"
// @Success 200 {object} models.LoanRequest
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/requests/{id} [get]
func (h *LoanHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	request, err := h.service.GetLoanRequest(r.Context(), requestID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// CancelRequest cancels a pending loan request
// @Summary Cancel loan request
// @Description Cancel one of the borrower's own pending loan requests
// @Tags loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan request ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/requests/{id} [delete]
func (h *LoanHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "id")

	if err := h.service.CancelLoanRequest(r.Context(), requestID, borrowerID); err != nil {
		services.SendDomainError(w, err)
		return
	}

	log.Printf("[LOAN] Request %s cancelled by user %d", requestID, borrowerID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Loan request cancelled"})
}
