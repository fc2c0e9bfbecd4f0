package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/peerfund/backend/internal/services"
)

type SettlementHandler struct {
	service   *services.SettlementService
	validator *services.ValidationHelper
}

func NewSettlementHandler(service *services.SettlementService) *SettlementHandler {
	return &SettlementHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ExportPayouts exports lender payouts as a pacs.008 batch
// @Summary Export lender payouts
// @Description Build an ISO 20022 pacs.008 message covering completed repayments since the given time
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{since=string} true "RFC3339 lower bound"
// @Success 200 {object} services.PayoutExport
// @Failure 400 {object} services.ErrorResponse
// @Router /settlement/payouts/export [post]
func (h *SettlementHandler) ExportPayouts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Since string `json:"since" validate:"required"`
	}
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	since, err := time.Parse(time.RFC3339, req.Since)
	if err != nil {
		services.SendErrorResponse(w, "since must be RFC3339", http.StatusBadRequest, nil)
		return
	}

	export, err := h.service.ExportLenderPayouts(r.Context(), since)
	if err != nil {
		log.Printf("[SETTLE] Payout export failed: %v", err)
		services.SendDomainError(w, err)
		return
	}

	log.Printf("[SETTLE] Exported %d payouts in message %s", export.TxnCount, export.MessageID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(export)
}

// Acknowledge builds a pacs.002 status report for one transaction
// @Summary Acknowledge transaction
// @Description Build an ISO 20022 pacs.002 status report for a transaction
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body object{status=string} true "External payment status code"
// @Success 200 {object} services.PayoutExport
// @Failure 404 {object} services.ErrorResponse
// @Router /settlement/transactions/{id}/ack [post]
func (h *SettlementHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status" validate:"required,oneof=ACCP ACSC RJCT PDNG"`
	}
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	report, err := h.service.AcknowledgeTransaction(r.Context(), txnID, req.Status)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
