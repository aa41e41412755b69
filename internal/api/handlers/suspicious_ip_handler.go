package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
)

// SuspiciousIPHandler exposes the violation tracker to key owners: paginated
// listing, aggregate stats and manual block/unblock of offending addresses.
type SuspiciousIPHandler struct {
	suspiciousIPService services.SuspiciousIPService
}

func NewSuspiciousIPHandler(suspiciousIPService services.SuspiciousIPService) *SuspiciousIPHandler {
	return &SuspiciousIPHandler{suspiciousIPService: suspiciousIPService}
}

func (h *SuspiciousIPHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	opts := services.SuspiciousIPListOptions{
		KeyID: r.URL.Query().Get("key_id"),
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts.Page = parsed
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("is_blocked"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			opts.IsBlocked = &parsed
		}
	}

	page, err := h.suspiciousIPService.List(r.Context(), user.ID, opts)
	if err != nil {
		if errors.Is(err, services.ErrKeyNotOwned) {
			http.Error(w, "Forbidden: key not owned", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func (h *SuspiciousIPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	report, err := h.suspiciousIPService.Stats(r.Context(), user.ID, r.URL.Query().Get("key_id"))
	if err != nil {
		if errors.Is(err, services.ErrKeyNotOwned) {
			http.Error(w, "Forbidden: key not owned", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

type blockIPRequest struct {
	IPAddress string `json:"ip_address"`
	Reason    string `json:"reason"`
}

func (h *SuspiciousIPHandler) Block(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req blockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IPAddress == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual block"
	}

	affected, err := h.suspiciousIPService.BlockIP(r.Context(), user.ID, req.IPAddress, req.Reason)
	if err != nil {
		h.writeBlockError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":       fmt.Sprintf("IP %s blocked successfully", req.IPAddress),
		"affected_rows": affected,
	})
}

func (h *SuspiciousIPHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req blockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IPAddress == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	affected, err := h.suspiciousIPService.UnblockIP(r.Context(), user.ID, req.IPAddress)
	if err != nil {
		h.writeBlockError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":       fmt.Sprintf("IP %s unblocked successfully", req.IPAddress),
		"affected_rows": affected,
	})
}

func (h *SuspiciousIPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["ipID"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid suspicious IP id", http.StatusBadRequest)
		return
	}

	if err := h.suspiciousIPService.Delete(r.Context(), user.ID, uint(id)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "IP not found or not accessible", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SuspiciousIPHandler) writeBlockError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		http.Error(w, "IP not found or not accessible", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
