package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/peerfund/backend/internal/middleware"
	"github.com/peerfund/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR issues a repayment QR code for a loan
// @Summary Generate repayment QR code
// @Description Generate a single-use QR code for the loan's next installment
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} object{qrCode=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /loans/{id}/repay/qr [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	loanID := chi.URLParam(r, "id")

	qrCode, qrImage, err := h.service.GenerateRepaymentQR(r.Context(), loanID, borrowerID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"qrCode":  qrCode,
		"qrImage": qrImage,
	})
}

// RedeemQR resolves a scanned repayment QR code
// @Summary Redeem repayment QR code
// @Description Resolve a scanned code back to its installment details; consumes the code
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{qrCode=string} true "Scanned code"
// @Success 200 {object} services.QRPayment
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/redeem [post]
func (h *QRHandler) RedeemQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QRCode string `json:"qrCode" validate:"required"`
	}
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payment, err := h.service.RedeemRepaymentQR(r.Context(), req.QRCode)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    payment,
	})
}
