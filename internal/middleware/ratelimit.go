package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/metrics"
	"captcha-gateway-api/internal/ratelimit"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RateLimitMiddleware consults the durable counter store before the handler
// runs. Limits come from the key (minute/day) and the owning plan (month).
// A store read error fails open: availability outranks strict accounting.
// Denied requests are folded into the suspicious-IP tracker when one is
// wired.
func RateLimitMiddleware(usageService services.UsageService, suspiciousIPService services.SuspiciousIPService) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := services.APIKeyFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "API key required")
				return
			}
			plan, _ := services.PlanFromContext(r.Context())

			limits := services.LimitsFor(apiKey, plan)

			counts, err := usageService.CountersFor(r.Context(), apiKey.UserID, time.Now())
			if err != nil {
				logger.Logger.WithFields(logrus.Fields{
					"key_id": apiKey.KeyID,
					"error":  err.Error(),
				}).Warn("counter read failed, failing open")
				next.ServeHTTP(w, r)
				return
			}

			decision := ratelimit.Evaluate(limits, counts)
			setRateLimitHeaders(w, limits, counts)

			if !decision.Allowed {
				metrics.RateLimitDenials.WithLabelValues(string(decision.Reason)).Inc()
				if suspiciousIPService != nil {
					suspiciousIPService.RecordViolation(r.Context(), apiKey.KeyID, clientIP(r))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"detail": "Rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limits ratelimit.Limits, counts ratelimit.Counts) {
	if limits.PerMinute <= 0 {
		return
	}
	remaining := limits.PerMinute - counts.Minute
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limits.PerMinute))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
