package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/peerfund/backend/internal/services"
)

type SweepHandler struct {
	service *services.SweepService
}

func NewSweepHandler(service *services.SweepService) *SweepHandler {
	return &SweepHandler{service: service}
}

// Run triggers a sweep pass immediately
// @Summary Run sweep
// @Description Run the due-today and overdue passes now instead of waiting for the daily schedule
// @Tags sweep
// @Produce json
// @Security BearerAuth
// @Param asOf query string false "RFC3339 instant to sweep as of (default now)"
// @Success 200 {object} services.SweepSummary
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /sweep/run [post]
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			services.SendErrorResponse(w, "asOf must be RFC3339", http.StatusBadRequest, nil)
			return
		}
		asOf = parsed
	}

	summary, err := h.service.Run(r.Context(), asOf)
	if err != nil {
		log.Printf("[SWEEP] Manual run failed: %v", err)
		services.SendErrorResponse(w, "Sweep failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
