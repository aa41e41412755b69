package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
)

type APIKeyHandler struct {
	apiKeyService services.APIKeyService
	cache         services.CacheService
}

func NewAPIKeyHandler(apiKeyService services.APIKeyService, cache services.CacheService) *APIKeyHandler {
	return &APIKeyHandler{
		apiKeyService: apiKeyService,
		cache:         cache,
	}
}

type createKeyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create mints a key pair. The secret appears in this response and nowhere
// else; only its hash is stored.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = "default"
	}

	key, secret, err := h.apiKeyService.CreateKey(r.Context(), user.ID, req.Name, req.Description)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"key_id":     key.KeyID,
		"secret_key": secret,
		"name":       key.Name,
		"created_at": key.CreatedAt,
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	keys, err := h.apiKeyService.ListKeys(r.Context(), user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"api_keys": keys})
}

type toggleKeyRequest struct {
	IsActive bool `json:"is_active"`
}

func (h *APIKeyHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	keyID := mux.Vars(r)["keyID"]

	var req toggleKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.apiKeyService.SetKeyActive(r.Context(), user.ID, keyID, req.IsActive); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "API key not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	services.InvalidateAPIKey(r.Context(), h.cache, keyID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"key_id": keyID, "is_active": req.IsActive})
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := services.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	keyID := mux.Vars(r)["keyID"]

	if err := h.apiKeyService.DeleteKey(r.Context(), user.ID, keyID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "API key not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	services.InvalidateAPIKey(r.Context(), h.cache, keyID)

	w.WriteHeader(http.StatusNoContent)
}
