package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/services"
)

// CaptchaHandler serves the metered data plane. Key verification, origin
// checks and rate limiting have already run in the middleware chain by the
// time these handlers execute.
type CaptchaHandler struct {
	captchaService services.CaptchaService
	apiKeyService  services.APIKeyService
}

func NewCaptchaHandler(captchaService services.CaptchaService, apiKeyService services.APIKeyService) *CaptchaHandler {
	return &CaptchaHandler{
		captchaService: captchaService,
		apiKeyService:  apiKeyService,
	}
}

type nextCaptchaRequest struct {
	SiteKey      string                `json:"site_key"`
	BehaviorData services.BehaviorData `json:"behavior_data"`
}

// NextCaptcha godoc
// @Summary Pick the next captcha challenge from a behavior sample
// @Tags captcha
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /api/next-captcha [post]
func (h *CaptchaHandler) NextCaptcha(w http.ResponseWriter, r *http.Request) {
	apiKey, ok := services.APIKeyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req nextCaptchaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.captchaService.NextCaptcha(r.Context(), apiKey, req.BehaviorData)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":          true,
		"next_captcha":     result.CaptchaType,
		"captcha_type":     result.CaptchaType,
		"captcha_token":    result.Token,
		"confidence_score": result.ConfidenceScore,
		"is_bot_detected":  result.IsBotDetected,
		"api_key_info": map[string]interface{}{
			"key_name": apiKey.Name,
		},
	})
}

type verifyCaptchaRequest struct {
	SecretKey    string `json:"secret_key"`
	Response     string `json:"response"`
	CaptchaToken string `json:"captcha_token"`
}

// VerifyCaptcha is the server-to-server verification call: it requires the
// secret key and consumes the one-time challenge token.
func (h *CaptchaHandler) VerifyCaptcha(w http.ResponseWriter, r *http.Request) {
	apiKey, ok := services.APIKeyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req verifyCaptchaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SecretKey == "" {
		http.Error(w, "Secret key required", http.StatusUnauthorized)
		return
	}
	if req.CaptchaToken == "" {
		http.Error(w, "Captcha token required", http.StatusBadRequest)
		return
	}

	if _, err := h.apiKeyService.VerifyKeySecret(r.Context(), apiKey.KeyID, req.SecretKey); err != nil {
		http.Error(w, "Invalid API key or secret key", http.StatusUnauthorized)
		return
	}

	result, err := h.captchaService.VerifyCaptcha(r.Context(), apiKey, req.CaptchaToken, req.Response)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			http.Error(w, "Invalid token", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrTokenExpired):
			http.Error(w, "Token expired", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrTokenUsed):
			http.Error(w, "Token already used", http.StatusBadRequest)
		default:
			http.Error(w, "Token verification failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      result.Success,
		"score":        result.Score,
		"action":       "captcha_verification",
		"challenge_ts": result.IssuedAt.Format(time.RFC3339),
		"hostname":     r.Host,
		"token_info": map[string]interface{}{
			"token_id":     result.TokenID,
			"captcha_type": result.CaptchaType,
			"used_once":    true,
		},
	})
}

type verifyHandwritingRequest struct {
	ImageBase64 string `json:"image_base64"`
}

func (h *CaptchaHandler) VerifyHandwriting(w http.ResponseWriter, r *http.Request) {
	apiKey, ok := services.APIKeyFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req verifyHandwritingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ImageBase64 == "" {
		http.Error(w, "Image data required", http.StatusBadRequest)
		return
	}

	result, err := h.captchaService.VerifyHandwriting(r.Context(), apiKey, req.ImageBase64)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      result.Success,
		"score":        result.Score,
		"action":       "handwriting_verification",
		"challenge_ts": result.IssuedAt.Format(time.RFC3339),
		"hostname":     r.Host,
	})
}
