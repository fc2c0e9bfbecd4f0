package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/peerfund/backend/internal/middleware"
	"github.com/peerfund/backend/internal/models"
	"github.com/peerfund/backend/internal/services"
)

type DashboardHandler struct {
	service *services.DashboardService
}

func NewDashboardHandler(service *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Dashboard returns the caller's role-specific portfolio summary
// @Summary Get dashboard
// @Description Aggregate portfolio figures for the caller, shaped by their role
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.BorrowerDashboard
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /dashboard [get]
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	role, _ := r.Context().Value(middleware.RoleKey).(string)

	var (
		payload any
		err     error
	)
	switch role {
	case models.RoleLender:
		payload, err = h.service.LenderDashboard(r.Context(), userID)
	default:
		payload, err = h.service.BorrowerDashboard(r.Context(), userID)
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
