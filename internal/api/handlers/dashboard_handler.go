package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/services"
)

// DashboardHandler serves the account dashboard's usage views.
type DashboardHandler struct {
	statsService      services.StatsService
	usageService      services.UsageService
	requestLogService services.RequestLogService
}

func NewDashboardHandler(
	statsService services.StatsService,
	usageService services.UsageService,
	requestLogService services.RequestLogService,
) *DashboardHandler {
	return &DashboardHandler{
		statsService:      statsService,
		usageService:      usageService,
		requestLogService: requestLogService,
	}
}

// Analytics returns the plan-versus-consumption summary plus the live window
// counters for the authenticated user.
func (h *DashboardHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var plan *models.Plan
	if subscription, ok := services.SubscriptionFromContext(r.Context()); ok && subscription != nil {
		plan = &subscription.Plan
	}

	summary, err := h.statsService.UsageSummary(r.Context(), user.ID, plan)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	counters, err := h.usageService.CountersFor(r.Context(), user.ID, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"summary": summary,
		"current_windows": map[string]int{
			"minute": counters.Minute,
			"day":    counters.Day,
			"month":  counters.Month,
		},
	})
}

// Stats returns the daily rollup time series. Query param days defaults to 7
// and caps at 90.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	if days > 90 {
		days = 90
	}

	stats, err := h.statsService.StatsSince(r.Context(), user.ID, days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"days":  days,
		"stats": stats,
	})
}

func (h *DashboardHandler) Logs(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -1)

	logs, err := h.requestLogService.GetUserLogs(r.Context(), user.ID.String(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"logs": logs})
}
