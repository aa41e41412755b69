package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/repository"
	"captcha-gateway-api/internal/services"
)

// BillingHandler serves the dashboard's plan and subscription surface.
// Payment capture itself happens outside this API.
type BillingHandler struct {
	subscriptionService services.SubscriptionService
}

func NewBillingHandler(subscriptionService services.SubscriptionService) *BillingHandler {
	return &BillingHandler{subscriptionService: subscriptionService}
}

func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subscriptionService.ListPlans(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"plans": plans})
}

func (h *BillingHandler) CurrentPlan(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	subscription, err := h.subscriptionService.Current(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			http.Error(w, "No active subscription", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscription)
}

type changePlanRequest struct {
	PlanName string `json:"plan_name"`
}

func (h *BillingHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanName == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	subscription, err := h.subscriptionService.ChangePlan(r.Context(), user.ID, req.PlanName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Unknown plan", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscription)
}

func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	history, err := h.subscriptionService.History(r.Context(), user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"subscriptions": history})
}
