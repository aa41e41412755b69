package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"captcha-gateway-api/internal/models"
	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/repository"
	"captcha-gateway-api/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// AdminHandler exposes user and plan administration plus the fleet-wide
// analytics views. Every route behind it requires an admin JWT.
type AdminHandler struct {
	authService         services.AuthService
	subscriptionService services.SubscriptionService
	statsService        services.StatsService
	requestLogService   services.RequestLogService
	userRepo            repository.UserRepository
	planRepo            repository.PlanRepository
}

func NewAdminHandler(
	authService services.AuthService,
	subscriptionService services.SubscriptionService,
	statsService services.StatsService,
	requestLogService services.RequestLogService,
	userRepo repository.UserRepository,
	planRepo repository.PlanRepository,
) *AdminHandler {
	return &AdminHandler{
		authService:         authService,
		subscriptionService: subscriptionService,
		statsService:        statsService,
		requestLogService:   requestLogService,
		userRepo:            userRepo,
		planRepo:            planRepo,
	}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	users, err := h.userRepo.List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"users": users})
}

type adminCreateUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || len(req.Password) < 8 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Username, req.Password, req.FullName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if req.IsAdmin {
		user.IsAdmin = true
		if err := h.userRepo.Update(r.Context(), user); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type adminUpdateUserRequest struct {
	IsActive *bool `json:"is_active"`
	IsAdmin  *bool `json:"is_admin"`
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["userID"])
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	var req adminUpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	user.UpdatedAt = time.Now()

	if err := h.userRepo.Update(r.Context(), user); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["userID"])
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	if err := h.userRepo.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var plan models.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil || plan.Name == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.planRepo.Create(r.Context(), &plan); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(plan)
}

func (h *AdminHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID, err := strconv.ParseUint(mux.Vars(r)["planID"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid plan id", http.StatusBadRequest)
		return
	}

	plan, err := h.planRepo.GetByID(r.Context(), uint(planID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Plan not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var updated models.Plan
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	updated.ID = plan.ID

	if err := h.planRepo.Update(r.Context(), &updated); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *AdminHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	planID, err := strconv.ParseUint(mux.Vars(r)["planID"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid plan id", http.StatusBadRequest)
		return
	}

	if err := h.planRepo.Delete(r.Context(), uint(planID)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Plan not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type assignPlanRequest struct {
	PlanID uint `json:"plan_id"`
}

func (h *AdminHandler) AssignPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["userID"])
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	var req assignPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	subscription, err := h.subscriptionService.AssignPlan(r.Context(), userID, req.PlanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Plan not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscription)
}

// ErrorStats serves the per-day error rollup rebuilt by the sweeper.
func (h *AdminHandler) ErrorStats(w http.ResponseWriter, r *http.Request) {
	from, to := statsRange(r)

	stats, err := h.statsService.ErrorStats(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"error_stats": stats})
}

func (h *AdminHandler) EndpointUsage(w http.ResponseWriter, r *http.Request) {
	from, to := statsRange(r)

	usage, err := h.statsService.EndpointUsage(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"endpoint_usage": usage})
}

// Realtime serves a snapshot of the last five minutes straight from the raw
// request logs.
func (h *AdminHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.requestLogService.RealtimeSnapshot(r.Context(), 5*time.Minute)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

func statsRange(r *http.Request) (time.Time, time.Time) {
	to := time.Now()
	from := to.AddDate(0, 0, -7)

	layout := "2006-01-02"
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, err := time.Parse(layout, raw); err == nil {
			from = parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, err := time.Parse(layout, raw); err == nil {
			to = parsed
		}
	}
	return from, to
}
